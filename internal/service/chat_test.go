package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/scadforge/scadforge/internal/domain/model"
	apperrors "github.com/scadforge/scadforge/internal/errors"
	"github.com/scadforge/scadforge/internal/mocks"
)

func newTestChatService(t *testing.T, completer *mocks.MockChatCompleter, conversations *mocks.MockConversationRepository) *ChatService {
	t.Helper()
	svc, err := NewChatService(ChatServiceOptions{
		Completer:          completer,
		Conversations:      conversations,
		MaxHistoryMessages: 6,
	})
	require.NoError(t, err)
	return svc
}

func TestNewChatService(t *testing.T) {
	ctrl := gomock.NewController(t)
	completer := mocks.NewMockChatCompleter(ctrl)
	conversations := mocks.NewMockConversationRepository(ctrl)

	t.Run("requires completer", func(t *testing.T) {
		_, err := NewChatService(ChatServiceOptions{Conversations: conversations})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ChatCompleter is required")
	})

	t.Run("requires conversation store", func(t *testing.T) {
		_, err := NewChatService(ChatServiceOptions{Completer: completer})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ConversationRepository is required")
	})
}

func TestChatService_Chat(t *testing.T) {
	ctx := context.Background()
	convID := "0d4cbc07-6d70-4a5a-a0d7-6bcc633f6116"

	t.Run("answer-only turn has no source", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		completer := mocks.NewMockChatCompleter(ctrl)
		conversations := mocks.NewMockConversationRepository(ctrl)
		svc := newTestChatService(t, completer, conversations)

		conversations.EXPECT().History(ctx, convID, 6).Return(nil, nil)
		completer.EXPECT().
			Complete(ctx, gomock.Any()).
			DoAndReturn(func(_ context.Context, messages []model.ChatMessage) (string, error) {
				require.Len(t, messages, 2)
				assert.Equal(t, model.ChatRoleSystem, messages[0].Role)
				assert.Contains(t, messages[0].Content, "cube([10, 10, 10]);")
				assert.Equal(t, "what does this do?", messages[1].Content)
				return "It renders a 10mm cube centered at the origin.", nil
			})
		conversations.EXPECT().Append(ctx, convID,
			model.ChatMessage{Role: model.ChatRoleUser, Content: "what does this do?"},
			model.ChatMessage{Role: model.ChatRoleAssistant, Content: "It renders a 10mm cube centered at the origin."},
		).Return(nil)

		result, err := svc.Chat(ctx, convID, "what does this do?", "cube([10, 10, 10]);")
		require.NoError(t, err)
		assert.Equal(t, convID, result.ConversationID)
		assert.Equal(t, "It renders a 10mm cube centered at the origin.", result.Reply)
		assert.Empty(t, result.Source)
	})

	t.Run("modification turn extracts the code block", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		completer := mocks.NewMockChatCompleter(ctrl)
		conversations := mocks.NewMockConversationRepository(ctrl)
		svc := newTestChatService(t, completer, conversations)

		reply := "I've doubled the cube size.\n\n" +
			"---MODIFIED-CODE-START---\n```openscad\ncube([20, 20, 20], center=true);\n```\n---MODIFIED-CODE-END---"

		conversations.EXPECT().History(ctx, convID, 6).Return(nil, nil)
		completer.EXPECT().Complete(ctx, gomock.Any()).Return(reply, nil)
		conversations.EXPECT().Append(ctx, convID, gomock.Any(), gomock.Any()).Return(nil)

		result, err := svc.Chat(ctx, convID, "double the size", "cube([10, 10, 10]);")
		require.NoError(t, err)
		assert.Equal(t, "I've doubled the cube size.", result.Reply)
		assert.Equal(t, "cube([20, 20, 20], center=true);", result.Source)
	})

	t.Run("blank explanation gets a default", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		completer := mocks.NewMockChatCompleter(ctrl)
		conversations := mocks.NewMockConversationRepository(ctrl)
		svc := newTestChatService(t, completer, conversations)

		reply := "---MODIFIED-CODE-START---\n```\nsphere(5);\n```\n---MODIFIED-CODE-END---"

		conversations.EXPECT().History(ctx, convID, 6).Return(nil, nil)
		completer.EXPECT().Complete(ctx, gomock.Any()).Return(reply, nil)
		conversations.EXPECT().Append(ctx, convID, gomock.Any(), gomock.Any()).Return(nil)

		result, err := svc.Chat(ctx, convID, "make it a sphere", "cube(1);")
		require.NoError(t, err)
		assert.Equal(t, "I've modified the code as requested.", result.Reply)
		assert.Equal(t, "sphere(5);", result.Source)
	})

	t.Run("history is replayed between system and user messages", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		completer := mocks.NewMockChatCompleter(ctrl)
		conversations := mocks.NewMockConversationRepository(ctrl)
		svc := newTestChatService(t, completer, conversations)

		history := []model.ChatMessage{
			{Role: model.ChatRoleUser, Content: "double the size"},
			{Role: model.ChatRoleAssistant, Content: "Done."},
		}

		conversations.EXPECT().History(ctx, convID, 6).Return(history, nil)
		completer.EXPECT().
			Complete(ctx, gomock.Any()).
			DoAndReturn(func(_ context.Context, messages []model.ChatMessage) (string, error) {
				require.Len(t, messages, 4)
				assert.Equal(t, model.ChatRoleSystem, messages[0].Role)
				assert.Equal(t, "double the size", messages[1].Content)
				assert.Equal(t, "Done.", messages[2].Content)
				assert.Equal(t, "now halve it", messages[3].Content)
				return "Halved.", nil
			})
		conversations.EXPECT().Append(ctx, convID, gomock.Any(), gomock.Any()).Return(nil)

		_, err := svc.Chat(ctx, convID, "now halve it", "cube(20);")
		require.NoError(t, err)
	})

	t.Run("blank conversation id starts a new conversation", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		completer := mocks.NewMockChatCompleter(ctrl)
		conversations := mocks.NewMockConversationRepository(ctrl)
		svc := newTestChatService(t, completer, conversations)

		conversations.EXPECT().History(ctx, gomock.Any(), 6).Return(nil, nil)
		completer.EXPECT().Complete(ctx, gomock.Any()).Return("Hello.", nil)
		conversations.EXPECT().Append(ctx, gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

		result, err := svc.Chat(ctx, "", "hi", "cube(1);")
		require.NoError(t, err)
		_, parseErr := uuid.Parse(result.ConversationID)
		assert.NoError(t, parseErr)
	})

	t.Run("malformed conversation id is rejected", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		svc := newTestChatService(t, mocks.NewMockChatCompleter(ctrl), mocks.NewMockConversationRepository(ctrl))

		_, err := svc.Chat(ctx, "not-a-uuid", "hi", "cube(1);")
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("blank message is rejected", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		svc := newTestChatService(t, mocks.NewMockChatCompleter(ctrl), mocks.NewMockConversationRepository(ctrl))

		_, err := svc.Chat(ctx, convID, "   ", "cube(1);")
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("modified source with parent refs is discarded", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		completer := mocks.NewMockChatCompleter(ctrl)
		conversations := mocks.NewMockConversationRepository(ctrl)
		svc := newTestChatService(t, completer, conversations)

		reply := "Swapped the import.\n\n" +
			"---MODIFIED-CODE-START---\n```openscad\nimport(\"../other.scad\");\n```\n---MODIFIED-CODE-END---"

		conversations.EXPECT().History(ctx, convID, 6).Return(nil, nil)
		completer.EXPECT().Complete(ctx, gomock.Any()).Return(reply, nil)
		conversations.EXPECT().Append(ctx, convID, gomock.Any(), gomock.Any()).Return(nil)

		result, err := svc.Chat(ctx, convID, "import the other file", "cube(1);")
		require.NoError(t, err)
		assert.Empty(t, result.Source)
		assert.Contains(t, result.Reply, "did not pass validation")
	})

	t.Run("history store failure on append does not fail the turn", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		completer := mocks.NewMockChatCompleter(ctrl)
		conversations := mocks.NewMockConversationRepository(ctrl)
		svc := newTestChatService(t, completer, conversations)

		conversations.EXPECT().History(ctx, convID, 6).Return(nil, nil)
		completer.EXPECT().Complete(ctx, gomock.Any()).Return("Hello.", nil)
		conversations.EXPECT().Append(ctx, convID, gomock.Any(), gomock.Any()).Return(errors.New("redis down"))

		result, err := svc.Chat(ctx, convID, "hi", "cube(1);")
		require.NoError(t, err)
		assert.Equal(t, "Hello.", result.Reply)
	})

	t.Run("history load failure fails the turn", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		completer := mocks.NewMockChatCompleter(ctrl)
		conversations := mocks.NewMockConversationRepository(ctrl)
		svc := newTestChatService(t, completer, conversations)

		conversations.EXPECT().History(ctx, convID, 6).Return(nil, errors.New("redis down"))

		_, err := svc.Chat(ctx, convID, "hi", "cube(1);")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeInternal, apperrors.GetCode(err))
	})
}

func TestSplitModifiedCode(t *testing.T) {
	t.Run("missing end marker leaves reply intact", func(t *testing.T) {
		reply := "Changed it.\n---MODIFIED-CODE-START---\ncube(2);"
		text, source := splitModifiedCode(reply)
		assert.Equal(t, reply, text)
		assert.Empty(t, source)
	})

	t.Run("code without fences", func(t *testing.T) {
		reply := "Done.\n---MODIFIED-CODE-START---\ncube(2);\n---MODIFIED-CODE-END---"
		text, source := splitModifiedCode(reply)
		assert.Equal(t, "Done.", text)
		assert.Equal(t, "cube(2);", source)
	})
}
