package minicap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spance/minicap-go/constants"
	"github.com/spance/minicap-go/metrics"
	"github.com/spance/minicap-go/mirror/definitions"
)

type ClientOption func(*Client)

func WithDialTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.dialTimeout = d }
}

func WithMaxFrameSize(n uint32) ClientOption {
	return func(c *Client) { c.maxFrameSize = n }
}

func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithBannerHandler is called once per connection, before the first frame.
func WithBannerHandler(fn func(*definitions.Banner)) ClientOption {
	return func(c *Client) { c.onBanner = fn }
}

// WithTerminationHandler is called once when the frame stream ends on its
// own or is closed. err is nil for a clean end or a Close.
func WithTerminationHandler(fn func(err error)) ClientOption {
	return func(c *Client) { c.onDone = fn }
}

// Client connects to the helper's forwarded socket and delivers frames to a
// single subscriber from its own goroutine.
type Client struct {
	addr         string
	dialTimeout  time.Duration
	maxFrameSize uint32
	metrics      *metrics.Metrics
	onBanner     func(*definitions.Banner)
	onDone       func(error)

	mu      sync.Mutex
	handler FrameHandler
	conn    net.Conn
	banner  *definitions.Banner
	started bool
	closed  bool
	err     error

	done     chan struct{}
	doneOnce sync.Once
}

func NewClient(addr string, handler FrameHandler, opts ...ClientOption) *Client {
	c := &Client{
		addr:         addr,
		dialTimeout:  constants.DefaultDialTimeout,
		maxFrameSize: constants.DefaultMaxFrameSize,
		handler:      handler,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Addr() string {
	return c.addr
}

// Subscribe replaces the subscriber. Frames already being delivered finish
// on the previous one.
func (c *Client) Subscribe(handler FrameHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Banner returns the banner of the current connection, or nil before it
// has been read.
func (c *Client) Banner() *definitions.Banner {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.banner
}

// Done is closed once the stream has ended.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the stream ended; nil while running or after a
// clean end.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Start dials the endpoint and begins reading on a new goroutine. A Client
// can be started once.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return definitions.ErrClientClosed
	}
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("client for %s already started", c.addr)
	}
	c.started = true
	c.mu.Unlock()

	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		err = fmt.Errorf("%w: dial %s: %w", definitions.ErrTransport, c.addr, err)
		c.finish(err, false)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		c.finish(nil, false)
		return definitions.ErrClientClosed
	}
	c.conn = conn
	c.mu.Unlock()

	log.Debug().Str("addr", c.addr).Msg("[Client] connected")
	c.metrics.StreamStarted()
	go c.run(conn)
	return nil
}

func (c *Client) run(conn net.Conn) {
	err := Stream(conn, FrameHandlerFunc(c.deliver), c.maxFrameSize, c.setBanner)
	_ = conn.Close()

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		// reads fail once Close has torn the socket down
		err = nil
	}

	if err != nil {
		log.Warn().Err(err).Str("addr", c.addr).Msg("[Client] stream ended")
	} else {
		log.Debug().Str("addr", c.addr).Msg("[Client] stream ended")
	}
	c.metrics.StreamEnded(err)
	c.finish(err, true)
}

func (c *Client) setBanner(banner *definitions.Banner) {
	c.mu.Lock()
	c.banner = banner
	c.mu.Unlock()
	log.Debug().
		Uint32("pid", banner.PID).
		Uint32("real_width", banner.RealWidth).
		Uint32("real_height", banner.RealHeight).
		Uint32("virtual_width", banner.VirtualWidth).
		Uint32("virtual_height", banner.VirtualHeight).
		Int("orientation", int(banner.Orientation)).
		Uint8("quirks", banner.Quirks).
		Msg("[Client] banner")
	if c.onBanner != nil {
		c.onBanner(banner)
	}
}

func (c *Client) deliver(frame *definitions.Frame) {
	c.metrics.FrameReceived(len(frame.Data))
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler != nil {
		handler.HandleFrame(frame)
	}
}

func (c *Client) finish(err error, notify bool) {
	c.doneOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
		if notify && c.onDone != nil {
			c.onDone(err)
		}
	})
}

// Close tears down the connection, unblocking any pending read. It is safe
// to call from any goroutine and more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	started := c.started
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Debug().Err(err).Str("addr", c.addr).Msg("[Client] close failed")
		}
	}
	if !started {
		c.finish(nil, false)
	}
	return nil
}
