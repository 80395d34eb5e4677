package websocket

import (
	"errors"
	"sync"
	"time"
)

// mockConnection blocks reads until closed and records writes
type mockConnection struct {
	mu      sync.Mutex
	written [][]byte
	closed  chan struct{}
	once    sync.Once
}

func newMockConnection() *mockConnection {
	return &mockConnection{closed: make(chan struct{})}
}

func (m *mockConnection) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.closed:
		return errors.New("connection closed")
	default:
	}
	if messageType == 1 { // TextMessage
		m.written = append(m.written, data)
	}
	return nil
}

func (m *mockConnection) ReadMessage() (int, []byte, error) {
	<-m.closed
	return 0, nil, errors.New("connection closed")
}

func (m *mockConnection) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *mockConnection) SetReadDeadline(time.Time) error   { return nil }
func (m *mockConnection) SetWriteDeadline(time.Time) error  { return nil }
func (m *mockConnection) SetReadLimit(int64)                {}
func (m *mockConnection) SetPongHandler(func(string) error) {}
func (m *mockConnection) RemoteAddr() string                { return "127.0.0.1:9000" }

func (m *mockConnection) messages() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.written...)
}
