// Package mocks provides mock implementations for testing the crew job API.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the ports in internal/core.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	store := mocks.NewMockJobStore(ctrl)
//	store.EXPECT().Create(gomock.Any(), "job-1").Return(job, nil)
package mocks

// MockJobStore: Create, Get, Mutate, AppendEvent, Stats
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_store_mock.go github.com/target/crew-api/internal/core JobStore

// MockTask: Run
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=task_mock.go github.com/target/crew-api/internal/core Task

// MockDispatcher: Dispatch
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=dispatcher_mock.go github.com/target/crew-api/internal/core Dispatcher

// MockIdempotencyStore: Reserve, Release, Replace
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=idempotency_store_mock.go github.com/target/crew-api/internal/core IdempotencyStore
