// Package testutil provides test doubles and network helpers shared by
// package tests.
package testutil

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockOrchestrator is a mock of the control surface orchestrator.
type MockOrchestrator struct {
	mock.Mock
}

// Fork mocks the Fork method.
func (m *MockOrchestrator) Fork(port *uint32) (uint32, error) {
	args := m.Called(port)
	return args.Get(0).(uint32), args.Error(1)
}

// ShutdownAll mocks the ShutdownAll method.
func (m *MockOrchestrator) ShutdownAll() int {
	return m.Called().Int(0)
}

// NewMockOrchestrator creates a mock orchestrator with default behaviors.
func NewMockOrchestrator(t *testing.T) *MockOrchestrator {
	t.Helper()
	m := new(MockOrchestrator)

	// Default behavior: shutdown terminates nothing
	m.On("ShutdownAll").Return(0).Maybe()

	return m
}

// MockVersionSource is a mock of the /json/version body source.
type MockVersionSource struct {
	mock.Mock
}

// Body mocks the Body method.
func (m *MockVersionSource) Body(ctx context.Context, endpoint string) ([]byte, bool) {
	args := m.Called(ctx, endpoint)
	var body []byte
	if v := args.Get(0); v != nil {
		body = v.([]byte)
	}
	return body, args.Bool(1)
}

// NewMockVersionSource creates a mock that answers every request with body.
func NewMockVersionSource(t *testing.T, body []byte, ok bool) *MockVersionSource {
	t.Helper()
	m := new(MockVersionSource)
	m.On("Body", mock.Anything, mock.Anything).Return(body, ok).Maybe()
	return m
}

// ClosedAddr returns a loopback address nothing listens on.
func ClosedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

// Listen opens a loopback listener closed at the end of the test.
func Listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return ln
}
