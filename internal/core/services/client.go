package services

import (
	"sync"
	"time"

	"livehub/internal/core/domain"
)

type deliveryResult int

const (
	delivered deliveryResult = iota
	clientGone
	bufferFull
)

// Client is one live connection as seen by the hub. The transport layer owns
// the socket; the hub only ever touches the outbound queue. The queue is never
// closed, shutdown is signalled through Done.
type Client struct {
	ID          domain.ConnectionID
	IP          string
	Page        string
	ConnectedAt time.Time

	send       chan []byte
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
	exitOnce   sync.Once
	closer     func() error

	mu             sync.RWMutex
	identity       *domain.Identity
	lastActivity   time.Time
	final          []byte
	writerAttached bool
}

// NewClient builds an unregistered client. closer releases the underlying
// transport and may be nil in tests.
func NewClient(ip, page string, buffer int, closer func() error) *Client {
	if buffer <= 0 {
		buffer = 1
	}
	return &Client{
		IP:         ip,
		Page:       page,
		send:       make(chan []byte, buffer),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		closer:     closer,
	}
}

// Identity returns the identity set by identify, if any.
func (c *Client) Identity() (domain.Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil {
		return domain.Identity{}, false
	}
	return *c.identity, true
}

func (c *Client) setIdentity(identity domain.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity != nil {
		if *c.identity == identity {
			return nil
		}
		return domain.ErrAlreadyIdentified
	}
	c.identity = &identity
	return nil
}

// SetPage records the page the client reported at identify.
func (c *Client) SetPage(page string) {
	c.mu.Lock()
	c.Page = page
	c.mu.Unlock()
}

// Touch records activity on the connection.
func (c *Client) Touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

func (c *Client) LastActivity() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActivity
}

// Send is the outbound queue drained by the connection writer.
func (c *Client) Send() <-chan []byte {
	return c.send
}

// Done is closed once the client has been told to shut down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Final returns the notice to flush before closing, if any.
func (c *Client) Final() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.final
}

// WriterStarted marks that a writer goroutine drains this client, so Close
// waits for it to flush the final notice.
func (c *Client) WriterStarted() {
	c.mu.Lock()
	c.writerAttached = true
	c.mu.Unlock()
}

// WriterExited must be called by the writer when it returns.
func (c *Client) WriterExited() {
	c.exitOnce.Do(func() { close(c.writerDone) })
}

// Close stops the client. notice, when non-nil, is written by the writer
// before the transport is released. Close waits up to wait for the writer and
// then closes the transport. Only the first call has any effect.
func (c *Client) Close(notice []byte, wait time.Duration) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.final = notice
		attached := c.writerAttached
		c.mu.Unlock()
		close(c.done)

		if attached && wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-c.writerDone:
			case <-timer.C:
			}
			timer.Stop()
		}
		if c.closer != nil {
			_ = c.closer()
		}
	})
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) enqueue(data []byte, timeout time.Duration) deliveryResult {
	if c.Closed() {
		return clientGone
	}
	select {
	case c.send <- data:
		return delivered
	default:
	}
	if timeout <= 0 {
		return bufferFull
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c.send <- data:
		return delivered
	case <-c.done:
		return clientGone
	case <-timer.C:
		return bufferFull
	}
}

func (c *Client) presenceEntry() (domain.PresenceEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil {
		return domain.PresenceEntry{}, false
	}
	return domain.PresenceEntry{
		ConnectionID: c.ID,
		Username:     c.identity.Username,
		Role:         c.identity.Role,
		Fingerprint:  c.identity.Fingerprint,
		IP:           c.IP,
		Page:         c.Page,
		ConnectTime:  c.ConnectedAt,
		LastActivity: c.lastActivity,
	}, true
}

func (c *Client) matches(fingerprint, ip string) bool {
	if ip != "" && c.IP == ip {
		return true
	}
	if fingerprint == "" {
		return false
	}
	identity, ok := c.Identity()
	return ok && identity.Fingerprint == fingerprint
}
