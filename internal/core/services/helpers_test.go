package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"livehub/internal/core/domain"
	"livehub/internal/core/ports"
	"livehub/internal/infrastructure/repositories/memory"
	"livehub/pkg/retry"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errStoreDown = errors.New("store unavailable")

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// flakyStore wraps the memory store and fails on demand.
type flakyStore struct {
	ports.ModerationStore
	failWrites atomic.Bool
	failReads  atomic.Bool
	saveCalls  atomic.Int32

	// When hold is set, saves announce themselves on entered and block
	// until hold is closed.
	hold    chan struct{}
	entered chan struct{}
}

func (s *flakyStore) holdSaves() {
	s.hold = make(chan struct{})
	s.entered = make(chan struct{}, 1)
}

func (s *flakyStore) wait() {
	if s.hold != nil {
		s.entered <- struct{}{}
		<-s.hold
	}
}

func newFlakyStore() *flakyStore {
	return &flakyStore{ModerationStore: memory.NewMemoryModerationStore()}
}

func (s *flakyStore) SaveBan(ctx context.Context, ban *domain.Ban) error {
	s.saveCalls.Add(1)
	s.wait()
	if s.failWrites.Load() {
		return errStoreDown
	}
	return s.ModerationStore.SaveBan(ctx, ban)
}

func (s *flakyStore) SaveMute(ctx context.Context, mute *domain.Mute) error {
	s.saveCalls.Add(1)
	s.wait()
	if s.failWrites.Load() {
		return errStoreDown
	}
	return s.ModerationStore.SaveMute(ctx, mute)
}

func (s *flakyStore) FindBan(ctx context.Context, fp, ip string, now time.Time) (*domain.Ban, error) {
	if s.failReads.Load() {
		return nil, errStoreDown
	}
	return s.ModerationStore.FindBan(ctx, fp, ip, now)
}

func (s *flakyStore) FindMute(ctx context.Context, fp string, now time.Time) (*domain.Mute, error) {
	if s.failReads.Load() {
		return nil, errStoreDown
	}
	return s.ModerationStore.FindMute(ctx, fp, now)
}

type disconnectCall struct {
	Fingerprint string
	IP          string
	Notice      domain.Event
}

type fakeDisconnector struct {
	mu           sync.Mutex
	disconnected []disconnectCall
	notified     []disconnectCall
}

func (d *fakeDisconnector) DisconnectMatching(fp, ip string, notice domain.Event) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnected = append(d.disconnected, disconnectCall{fp, ip, notice})
	return 1
}

func (d *fakeDisconnector) NotifyMatching(fp, ip string, notice domain.Event) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notified = append(d.notified, disconnectCall{fp, ip, notice})
	return 1
}

func (d *fakeDisconnector) Disconnected() []disconnectCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]disconnectCall(nil), d.disconnected...)
}

func (d *fakeDisconnector) Notified() []disconnectCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]disconnectCall(nil), d.notified...)
}

type published struct {
	Event    domain.Event
	Audience domain.Audience
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(ev domain.Event, audience domain.Audience) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{ev, audience})
	return 1
}

func (p *recordingPublisher) Events() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.events...)
}

// drain reads every frame currently queued for c.
func drain(t *testing.T, c *Client) []domain.Event {
	t.Helper()
	var out []domain.Event
	for {
		select {
		case data := <-c.Send():
			ev, err := domain.DecodeOutbound(data)
			require.NoError(t, err)
			out = append(out, ev)
		default:
			return out
		}
	}
}

func newTestClient(ip string) *Client {
	return NewClient(ip, "/watch", 256, nil)
}
