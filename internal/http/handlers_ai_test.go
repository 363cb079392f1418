package httpx

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/scadforge/scadforge/internal/domain/model"
	"github.com/scadforge/scadforge/internal/mocks"
	"github.com/scadforge/scadforge/internal/service"
)

type aiRouterFixture struct {
	*routerFixture
	completer     *mocks.MockChatCompleter
	conversations *mocks.MockConversationRepository
}

func newAIRouterFixture(t *testing.T) *aiRouterFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	ws := mocks.NewMockWorkspaceStore(ctrl)
	completer := mocks.NewMockChatCompleter(ctrl)
	conversations := mocks.NewMockConversationRepository(ctrl)

	jobs := service.MustNewJobService(service.JobServiceOptions{
		Repo:              repo,
		Workspace:         ws,
		DefaultLease:      30 * time.Second,
		MaxSourceBytes:    1024,
		QueueBacklogLimit: 10,
		Notifier:          idleNotifier{},
	})
	t.Cleanup(jobs.StopAllListeners)

	generate, err := service.NewGenerateService(service.GenerateServiceOptions{Completer: completer})
	require.NoError(t, err)
	chat, err := service.NewChatService(service.ChatServiceOptions{
		Completer:     completer,
		Conversations: conversations,
	})
	require.NoError(t, err)

	return &aiRouterFixture{
		routerFixture: &routerFixture{
			repo: repo,
			ws:   ws,
			mux:  NewRouter(RouterServices{Jobs: jobs, Generate: generate, Chat: chat}),
		},
		completer:     completer,
		conversations: conversations,
	}
}

func TestGenerateSource(t *testing.T) {
	t.Run("returns source", func(t *testing.T) {
		f := newAIRouterFixture(t)
		f.completer.EXPECT().Complete(gomock.Any(), gomock.Any()).
			Return("cube([10, 10, 10], center=true);", nil)

		rec := f.do(t, http.MethodPost, "/api/generate", `{"prompt":"a 10mm cube"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "cube([10, 10, 10], center=true);", decodeBody(t, rec)["source"])
	})

	t.Run("blank prompt", func(t *testing.T) {
		f := newAIRouterFixture(t)

		rec := f.do(t, http.MethodPost, "/api/generate", `{"prompt":"  "}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("provider failure masked", func(t *testing.T) {
		f := newAIRouterFixture(t)
		f.completer.EXPECT().Complete(gomock.Any(), gomock.Any()).
			Return("", context.DeadlineExceeded)

		rec := f.do(t, http.MethodPost, "/api/generate", `{"prompt":"a cube"}`)

		assert.GreaterOrEqual(t, rec.Code, http.StatusInternalServerError)
	})

	t.Run("route absent without services", func(t *testing.T) {
		f := newRouterFixture(t)

		rec := f.do(t, http.MethodPost, "/api/generate", `{"prompt":"a cube"}`)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestChatMessage(t *testing.T) {
	t.Run("new conversation", func(t *testing.T) {
		f := newAIRouterFixture(t)
		f.conversations.EXPECT().History(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, nil)
		f.completer.EXPECT().Complete(gomock.Any(), gomock.Any()).
			Return("That code draws a centered cube.", nil)
		f.conversations.EXPECT().Append(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil)

		rec := f.do(t, http.MethodPost, "/api/chat",
			`{"message":"what does this do?","current_source":"cube(10);"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "That code draws a centered cube.", body["reply"])
		_, err := uuid.Parse(body["conversation_id"].(string))
		assert.NoError(t, err)
		_, hasSource := body["source"]
		assert.False(t, hasSource)
	})

	t.Run("modified source returned", func(t *testing.T) {
		f := newAIRouterFixture(t)
		convID := uuid.NewString()
		reply := "Scaled it up.\n---MODIFIED-CODE-START---\n```openscad\ncube([20, 20, 20], center=true);\n```\n---MODIFIED-CODE-END---"
		f.conversations.EXPECT().History(gomock.Any(), convID, gomock.Any()).
			Return([]model.ChatMessage{}, nil)
		f.completer.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(reply, nil)
		f.conversations.EXPECT().Append(gomock.Any(), convID, gomock.Any(), gomock.Any()).
			Return(nil)

		rec := f.do(t, http.MethodPost, "/api/chat",
			`{"conversation_id":"`+convID+`","message":"make it twice as big","current_source":"cube(10);"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, convID, body["conversation_id"])
		assert.Equal(t, "cube([20, 20, 20], center=true);", body["source"])
	})

	t.Run("malformed conversation id", func(t *testing.T) {
		f := newAIRouterFixture(t)

		rec := f.do(t, http.MethodPost, "/api/chat",
			`{"conversation_id":"not-a-uuid","message":"hello"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
