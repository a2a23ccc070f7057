package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	msgs   [][]byte
	fail   bool
	closed bool
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("broken pipe")
	}
	c.msgs = append(c.msgs, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func startHub(t *testing.T) *Hub {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func TestHub_BroadcastsToClients(t *testing.T) {
	h := startHub(t)
	a, b := &fakeConn{}, &fakeConn{}
	h.Register(a)
	h.Register(b)
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	h.Publish("schedule", map[string]int{"rows": 3})

	require.Eventually(t, func() bool { return a.count() == 1 && b.count() == 1 }, time.Second, 5*time.Millisecond)
	var msg Message
	a.mu.Lock()
	require.NoError(t, json.Unmarshal(a.msgs[0], &msg))
	a.mu.Unlock()
	assert.Equal(t, "schedule", msg.Type)
}

func TestHub_NewClientGetsLastMessage(t *testing.T) {
	h := startHub(t)
	first := &fakeConn{}
	h.Register(first)
	h.Publish("schedule", 1)
	require.Eventually(t, func() bool { return first.count() == 1 }, time.Second, 5*time.Millisecond)

	late := &fakeConn{}
	h.Register(late)
	assert.Eventually(t, func() bool { return late.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestHub_DropsBrokenClients(t *testing.T) {
	h := startHub(t)
	broken := &fakeConn{fail: true}
	h.Register(broken)
	h.Register(&fakeConn{})
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	h.Publish("schedule", 1)
	assert.Eventually(t, func() bool {
		broken.mu.Lock()
		defer broken.mu.Unlock()
		return broken.closed && h.ClientCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHub_Unregister(t *testing.T) {
	h := startHub(t)
	c := &fakeConn{}
	h.Register(c)
	h.Unregister(c)
	assert.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	c.mu.Lock()
	defer c.mu.Unlock()
	assert.True(t, c.closed)
}

func TestHub_ShutdownReleasesCallers(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	c := &fakeConn{}
	h.Register(c)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	returned := make(chan struct{})
	late := &fakeConn{}
	go func() {
		h.Unregister(c)
		h.Register(late)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Register/Unregister blocked after shutdown")
	}

	assert.Equal(t, 0, h.ClientCount())
	c.mu.Lock()
	assert.True(t, c.closed)
	c.mu.Unlock()
	late.mu.Lock()
	assert.True(t, late.closed)
	late.mu.Unlock()
}
