package runner

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockRunner is a testify mock of Runner
type MockRunner struct {
	mock.Mock
}

// Run implements Runner
func (m *MockRunner) Run(ctx context.Context, command string) (Result, error) {
	args := m.Called(ctx, command)
	return args.Get(0).(Result), args.Error(1)
}

// OnRun registers an expectation for command and returns the call for
// chaining.
func (m *MockRunner) OnRun(command string, res Result, err error) *mock.Call {
	return m.On("Run", mock.Anything, command).Return(res, err)
}
