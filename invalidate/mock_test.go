package invalidate

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Cocoseas/lambosync/rpc"
)

// mockSub is one subscription opened against the mock caller
type mockSub struct {
	command string
	service string
	handler rpc.PushHandler
	closes  atomic.Int32
}

// mockCaller fakes the daemon RPC surface. Subscriptions can be gated to
// simulate slow acknowledgments, and individual commands can be failed.
type mockCaller struct {
	mu        sync.Mutex
	subs      []*mockSub
	calls     []rpc.Request
	responses map[string]rpc.Response
	failSub   map[string]error
	gates     map[string]chan struct{}
}

func newMockCaller() *mockCaller {
	return &mockCaller{
		responses: make(map[string]rpc.Response),
		failSub:   make(map[string]error),
		gates:     make(map[string]chan struct{}),
	}
}

func (m *mockCaller) Call(ctx context.Context, command, service string, args map[string]any) (rpc.Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, rpc.Request{Command: command, Service: service, Args: args})
	resp, ok := m.responses[command]
	m.mu.Unlock()
	if !ok {
		return rpc.Response{Data: map[string]any{}}, nil
	}
	return resp, nil
}

func (m *mockCaller) Subscribe(ctx context.Context, command, service string, handler rpc.PushHandler) (rpc.Unsubscribe, error) {
	m.mu.Lock()
	gate := m.gates[command]
	err := m.failSub[command]
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	sub := &mockSub{command: command, service: service, handler: handler}
	m.mu.Lock()
	m.subs = append(m.subs, sub)
	m.mu.Unlock()

	return func() { sub.closes.Add(1) }, nil
}

// push delivers a push event to every subscription matching the command
func (m *mockCaller) push(command, service string, push rpc.Push) {
	push.Command = command
	push.Service = service
	m.mu.Lock()
	subs := make([]*mockSub, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, sub := range subs {
		if sub.command == command && sub.service == service {
			sub.handler(push)
		}
	}
}

func (m *mockCaller) subCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *mockCaller) callCount(command string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, call := range m.calls {
		if call.Command == command {
			count++
		}
	}
	return count
}

func (m *mockCaller) totalCloses() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, sub := range m.subs {
		total += int(sub.closes.Load())
	}
	return total
}
