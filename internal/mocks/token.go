package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"
)

// MockToken is a testify mock of mqtt.Token.
type MockToken struct {
	mock.Mock
}

func (m *MockToken) Error() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockToken) Wait() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockToken) Done() <-chan struct{} {
	args := m.Called()
	return args.Get(0).(<-chan struct{})
}

func (m *MockToken) WaitTimeout(timeout time.Duration) bool {
	args := m.Called(timeout)
	return args.Bool(0)
}

// DoneToken is an already completed mqtt.Token carrying Err.
type DoneToken struct {
	Err error
}

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func (t *DoneToken) Wait() bool                       { return true }
func (t *DoneToken) WaitTimeout(_ time.Duration) bool { return true }
func (t *DoneToken) Done() <-chan struct{}            { return closedCh }
func (t *DoneToken) Error() error                     { return t.Err }
