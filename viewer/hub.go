package viewer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/spance/minicap-go/metrics"
	"github.com/spance/minicap-go/mirror/definitions"
	"github.com/spance/minicap-go/utils"
)

const (
	writeTimeout = 5 * time.Second
	// sendQueue bounds the messages buffered for one viewer.
	sendQueue = 8
)

// RotateFunc applies a rotation requested by a viewer.
type RotateFunc func(rotation definitions.Rotation) error

type message struct {
	kind int
	data []byte
}

// peer is one connected viewer. Only its write loop writes to ws.
type peer struct {
	ws   *websocket.Conn
	send chan message
	done chan struct{}
	once sync.Once
}

func newPeer(ws *websocket.Conn) *peer {
	return &peer{
		ws:   ws,
		send: make(chan message, sendQueue),
		done: make(chan struct{}),
	}
}

// enqueue queues msg without blocking and reports whether it fit.
func (p *peer) enqueue(msg message) bool {
	select {
	case p.send <- msg:
		return true
	default:
		return false
	}
}

func (p *peer) close() {
	p.once.Do(func() {
		close(p.done)
		_ = p.ws.Close()
	})
}

func (p *peer) writeLoop(onError func()) {
	for {
		select {
		case <-p.done:
			return
		case msg := <-p.send:
			_ = p.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := p.ws.WriteMessage(msg.kind, msg.data); err != nil {
				log.Debug().Err(err).Msg("[Viewer] write failed, dropping client")
				onError()
				return
			}
		}
	}
}

// Hub fans frames out to websocket viewers. Every viewer gets the current
// banner and the latest frame on connect, then every frame as it arrives.
// A viewer that falls behind skips frames instead of stalling the stream.
type Hub struct {
	mu      sync.Mutex
	clients map[*peer]struct{}
	banner  []byte
	latest  []byte

	onRotate RotateFunc
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
}

func NewHub(onRotate RotateFunc, m *metrics.Metrics) *Hub {
	return &Hub{
		clients:  make(map[*peer]struct{}),
		onRotate: onRotate,
		metrics:  m,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler serves the viewer page at / and the stream at /ws.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", servePage)
	mux.HandleFunc("/ws", h.handleWS)
	return mux
}

// Serve runs the viewer HTTP server until ctx is done.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: h.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		h.Close()
	}()

	log.Info().Str("addr", addr).Msg("[Viewer] listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("[Viewer] upgrade failed")
		return
	}

	p := newPeer(ws)
	h.mu.Lock()
	h.clients[p] = struct{}{}
	if h.banner != nil {
		p.enqueue(message{websocket.TextMessage, h.banner})
	}
	if h.latest != nil {
		p.enqueue(message{websocket.BinaryMessage, h.latest})
	}
	h.mu.Unlock()
	h.metrics.ViewerConnected()
	log.Debug().Str("remote", r.RemoteAddr).Msg("[Viewer] client connected")

	go p.writeLoop(func() { h.remove(p) })
	defer func() {
		h.remove(p)
		log.Debug().Str("remote", r.RemoteAddr).Msg("[Viewer] client disconnected")
	}()

	for {
		kind, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		if err := h.command(string(msg)); err != nil {
			log.Warn().Err(err).Str("command", string(msg)).Msg("[Viewer] command rejected")
		}
	}
}

// command handles "rotate:<degrees>".
func (h *Hub) command(msg string) error {
	name, arg, _ := strings.Cut(strings.TrimSpace(msg), ":")
	switch name {
	case "rotate":
		degrees, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("bad rotation %q", arg)
		}
		rotation, err := definitions.ParseRotation(degrees)
		if err != nil {
			return err
		}
		if h.onRotate == nil {
			return nil
		}
		return h.onRotate(rotation)
	default:
		return fmt.Errorf("unknown command %q", name)
	}
}

// SetBanner records the stream banner and pushes it to every viewer.
func (h *Hub) SetBanner(banner *definitions.Banner) {
	msg, err := utils.JsonMessage("banner", banner)
	if err != nil {
		log.Error().Err(err).Msg("[Viewer] encode banner failed")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.banner = msg
	h.broadcast(websocket.TextMessage, msg)
}

// HandleFrame broadcasts one encoded frame.
func (h *Hub) HandleFrame(frame *definitions.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = frame.Data
	h.broadcast(websocket.BinaryMessage, frame.Data)
}

// broadcast queues msg for every viewer. A full queue skips the frame; a
// viewer that cannot take the banner is disconnected and gets it on reconnect.
func (h *Hub) broadcast(kind int, msg []byte) {
	for p := range h.clients {
		if p.enqueue(message{kind, msg}) {
			continue
		}
		if kind == websocket.BinaryMessage {
			h.metrics.ViewerFrameDropped()
			continue
		}
		log.Debug().Msg("[Viewer] client too slow, dropping")
		delete(h.clients, p)
		h.metrics.ViewerDisconnected()
		p.close()
	}
}

func (h *Hub) remove(p *peer) {
	h.mu.Lock()
	if _, ok := h.clients[p]; ok {
		delete(h.clients, p)
		h.metrics.ViewerDisconnected()
	}
	h.mu.Unlock()
	p.close()
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every viewer.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for p := range h.clients {
		delete(h.clients, p)
		h.metrics.ViewerDisconnected()
		p.close()
	}
}
