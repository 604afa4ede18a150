package connector

import (
	"sync/atomic"

	"github.com/stretchr/testify/mock"

	"github.com/sarameisburger/go-pcp-client/connection"
)

type MockConnection struct {
	mock.Mock

	state atomic.Int32

	onMessage func([]byte)
	onOpen    func()
}

func (m *MockConnection) Connect(maxAttempts int) error {
	args := m.Called(maxAttempts)
	return args.Error(0)
}

func (m *MockConnection) Send(message []byte) error {
	args := m.Called(message)
	return args.Error(0)
}

func (m *MockConnection) Ping() error {
	args := m.Called()
	return args.Error(0)
}

// State is settable rather than expectation-driven because the monitor
// polls it on its own schedule.
func (m *MockConnection) State() connection.State {
	return connection.State(m.state.Load())
}

func (m *MockConnection) SetState(state connection.State) {
	m.state.Store(int32(state))
}

func (m *MockConnection) SetOnMessage(callback func([]byte)) {
	m.onMessage = callback
}

func (m *MockConnection) SetOnOpen(callback func()) {
	m.onOpen = callback
}

func (m *MockConnection) ResetCallbacks() {
	m.onMessage = nil
	m.onOpen = nil
}

func (m *MockConnection) Close(reason error) {
	m.Called(reason)
}

// DeliverMessage drives the installed on-message callback the way the read
// loop would.
func (m *MockConnection) DeliverMessage(raw []byte) {
	if m.onMessage != nil {
		m.onMessage(raw)
	}
}

// TriggerOpen drives the installed on-open callback the way a successful
// dial would.
func (m *MockConnection) TriggerOpen() {
	if m.onOpen != nil {
		m.onOpen()
	}
}
