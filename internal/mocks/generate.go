// Package mocks provides mock implementations for testing the render job system.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our repository interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockJobRepository(ctrl)
//	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(job, nil)
package mocks

// Generate mock for JobRepository interface from internal/core package.
// This creates MockJobRepository with methods for all JobRepository interface methods:
// Create, GetByID, ArtifactsByJobID, GetArtifact, ReserveNext, WaitForNotification,
// Complete, Fail, CountQueued, Stats, List
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_repository_mock.go github.com/scadforge/scadforge/internal/core JobRepository

// Generate mock for JobReaperRepository interface from internal/core package.
// This creates MockJobReaperRepository with methods:
// FailStaleRunningJobs, DeleteOldJobs
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_reaper_repository_mock.go github.com/scadforge/scadforge/internal/core JobReaperRepository

// Generate mock for WorkspaceStore interface from internal/core package.
// This creates MockWorkspaceStore with methods:
// Prepare, JobDir, ReadFile, Remove
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=workspace_store_mock.go github.com/scadforge/scadforge/internal/core WorkspaceStore

// Generate mock for RenderInvoker interface from internal/core package.
// This creates MockRenderInvoker with methods:
// Render
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=render_invoker_mock.go github.com/scadforge/scadforge/internal/core RenderInvoker

// Generate mock for ConversationRepository interface from internal/core package.
// This creates MockConversationRepository with methods:
// Append, History
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=conversation_repository_mock.go github.com/scadforge/scadforge/internal/core ConversationRepository

// Generate mock for ChatCompleter interface from internal/core package.
// This creates MockChatCompleter with methods:
// Complete
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=chat_completer_mock.go github.com/scadforge/scadforge/internal/core ChatCompleter
