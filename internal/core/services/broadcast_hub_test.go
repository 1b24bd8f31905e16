package services

import (
	"sync"
	"testing"
	"time"

	"livehub/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastHub_Audiences(t *testing.T) {
	r := NewConnectionRegistry()
	hub := NewBroadcastHub(r, 10*time.Millisecond, nil, testLogger())

	a, b := newTestClient("10.0.0.1"), newTestClient("10.0.0.2")
	idA := r.Register(a)
	r.Register(b)

	assert.Equal(t, 2, hub.Publish(domain.UserCountEvent{Count: 2}, domain.All()))
	assert.Equal(t, 1, hub.Publish(domain.ChatMessageEvent{Body: "hi"}, domain.AllExcept(idA)))
	assert.Equal(t, 1, hub.Publish(domain.ErrorEvent{Code: "X"}, domain.Single(idA)))
	assert.Equal(t, 0, hub.Publish(domain.ErrorEvent{Code: "X"}, domain.Single("gone")))

	gotA := drain(t, a)
	gotB := drain(t, b)

	require.Len(t, gotA, 2)
	assert.IsType(t, &domain.UserCountEvent{}, gotA[0])
	assert.IsType(t, &domain.ErrorEvent{}, gotA[1])

	require.Len(t, gotB, 2)
	assert.IsType(t, &domain.UserCountEvent{}, gotB[0])
	chat, ok := gotB[1].(*domain.ChatMessageEvent)
	require.True(t, ok)
	assert.Equal(t, "hi", chat.Body)
}

func TestBroadcastHub_SameOrderForEveryRecipient(t *testing.T) {
	r := NewConnectionRegistry()
	hub := NewBroadcastHub(r, time.Second, nil, testLogger())

	clients := make([]*Client, 3)
	for i := range clients {
		clients[i] = NewClient("10.0.0.1", "", 1024, nil)
		r.Register(clients[i])
	}

	const publishers, perPublisher = 4, 50
	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				hub.Publish(domain.UserCountEvent{Count: p*1000 + i}, domain.All())
			}
		}(p)
	}
	wg.Wait()

	sequences := make([][]int, len(clients))
	for i, c := range clients {
		for _, ev := range drain(t, c) {
			sequences[i] = append(sequences[i], ev.(*domain.UserCountEvent).Count)
		}
	}

	require.Len(t, sequences[0], publishers*perPublisher)
	assert.Equal(t, sequences[0], sequences[1])
	assert.Equal(t, sequences[0], sequences[2])

	// Each publisher's own events keep their relative order.
	last := map[int]int{}
	for _, n := range sequences[0] {
		p, i := n/1000, n%1000
		if prev, ok := last[p]; ok {
			assert.Greater(t, i, prev)
		}
		last[p] = i
	}
}

func TestBroadcastHub_SlowClientOverflowsWithoutBlockingOthers(t *testing.T) {
	r := NewConnectionRegistry()
	hub := NewBroadcastHub(r, 5*time.Millisecond, nil, testLogger())

	overflowed := make(chan *Client, 1)
	hub.OnOverflow(func(c *Client) { overflowed <- c })

	slow := NewClient("10.0.0.1", "", 1, nil)
	fast := NewClient("10.0.0.2", "", 16, nil)
	slowID := r.Register(slow)
	r.Register(fast)

	hub.Publish(domain.UserCountEvent{Count: 1}, domain.All())
	sent := hub.Publish(domain.UserCountEvent{Count: 2}, domain.All())
	assert.Equal(t, 1, sent)

	select {
	case c := <-overflowed:
		assert.Equal(t, slowID, c.ID)
	case <-time.After(time.Second):
		t.Fatal("overflow handler not called")
	}

	assert.Len(t, drain(t, fast), 2)
}

func TestBroadcastHub_StalledClientsShareSendTimeout(t *testing.T) {
	const timeout = 100 * time.Millisecond
	r := NewConnectionRegistry()
	hub := NewBroadcastHub(r, timeout, nil, testLogger())

	var mu sync.Mutex
	var overflowed []domain.ConnectionID
	hub.OnOverflow(func(c *Client) {
		mu.Lock()
		overflowed = append(overflowed, c.ID)
		mu.Unlock()
	})

	for i := 0; i < 4; i++ {
		r.Register(NewClient("10.0.0.1", "", 1, nil))
	}
	fast := NewClient("10.0.0.2", "", 16, nil)
	r.Register(fast)
	hub.Publish(domain.UserCountEvent{Count: 1}, domain.All())

	start := time.Now()
	sent := hub.Publish(domain.UserCountEvent{Count: 2}, domain.All())
	elapsed := time.Since(start)

	assert.Equal(t, 1, sent)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, 2*timeout)
	assert.Len(t, drain(t, fast), 2)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(overflowed) == 4
	}, time.Second, 5*time.Millisecond)
}

func TestBroadcastHub_SkipsClosedClients(t *testing.T) {
	r := NewConnectionRegistry()
	hub := NewBroadcastHub(r, time.Millisecond, nil, testLogger())

	overflowed := make(chan *Client, 1)
	hub.OnOverflow(func(c *Client) { overflowed <- c })

	c := newTestClient("10.0.0.1")
	r.Register(c)
	c.Close(nil, 0)

	assert.Zero(t, hub.Publish(domain.UserCountEvent{Count: 1}, domain.All()))
	select {
	case <-overflowed:
		t.Fatal("closed client must not be treated as overflow")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBroadcastHub_DefaultOverflowClosesClient(t *testing.T) {
	r := NewConnectionRegistry()
	hub := NewBroadcastHub(r, 0, nil, testLogger())

	c := NewClient("10.0.0.1", "", 1, nil)
	r.Register(c)

	hub.Publish(domain.UserCountEvent{Count: 1}, domain.All())
	hub.Publish(domain.UserCountEvent{Count: 2}, domain.All())

	assert.Eventually(t, c.Closed, time.Second, 5*time.Millisecond)
}
