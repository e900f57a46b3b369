package minicap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spance/minicap-go/constants"
	"github.com/spance/minicap-go/metrics"
	"github.com/spance/minicap-go/mirror/android"
	"github.com/spance/minicap-go/mirror/definitions"
	"github.com/spance/minicap-go/mirror/helper"
)

// SessionOptions configure a capture session. Zero values fall back to
// DefaultSessionOptions, except SettleDelay and LaunchDelay where zero
// means no wait.
type SessionOptions struct {
	// AssetDir holds bin/<abi>/minicap[-nopie] and
	// shared/android-<sdk>/<abi>/minicap.so.
	AssetDir   string
	RemoteDir  string
	LocalPort  int
	SocketName string
	Rotation   definitions.Rotation

	CommandTimeout time.Duration
	PushTimeout    time.Duration
	SettleDelay    time.Duration
	LaunchDelay    time.Duration
	DialTimeout    time.Duration
	RestartTimeout time.Duration
	MaxFrameSize   uint32

	Metrics       *metrics.Metrics
	OnStateChange func(prev, next definitions.SessionState)
	OnBanner      func(banner *definitions.Banner)
}

func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		AssetDir:       "assets",
		RemoteDir:      constants.RemoteDir,
		LocalPort:      constants.DefaultLocalPort,
		SocketName:     constants.HelperSocketName,
		Rotation:       definitions.Rotation0,
		CommandTimeout: constants.DefaultCommandTimeout,
		PushTimeout:    constants.DefaultPushTimeout,
		SettleDelay:    constants.DefaultSettleDelay,
		LaunchDelay:    constants.DefaultLaunchDelay,
		DialTimeout:    constants.DefaultDialTimeout,
		RestartTimeout: 2 * constants.DefaultPushTimeout,
		MaxFrameSize:   constants.DefaultMaxFrameSize,
	}
}

func (o SessionOptions) withDefaults() SessionOptions {
	d := DefaultSessionOptions()
	if o.AssetDir == "" {
		o.AssetDir = d.AssetDir
	}
	if o.RemoteDir == "" {
		o.RemoteDir = d.RemoteDir
	}
	if o.LocalPort == 0 {
		o.LocalPort = d.LocalPort
	}
	if o.SocketName == "" {
		o.SocketName = d.SocketName
	}
	if o.CommandTimeout == 0 {
		o.CommandTimeout = d.CommandTimeout
	}
	if o.PushTimeout == 0 {
		o.PushTimeout = d.PushTimeout
	}
	if o.DialTimeout == 0 {
		o.DialTimeout = d.DialTimeout
	}
	if o.RestartTimeout == 0 {
		o.RestartTimeout = d.RestartTimeout
	}
	if o.MaxFrameSize == 0 {
		o.MaxFrameSize = d.MaxFrameSize
	}
	return o
}

// Session drives the helper on one device through deploy, validate,
// launch, discovery, tunnel and streaming, and tears it down again.
// Only one of Start, Stop or a rotation restart runs at a time.
type Session struct {
	ID string

	serial   string
	executor definitions.Executor
	prober   *android.Prober
	tunnel   *android.Tunnel
	opts     SessionOptions

	lifecycle sync.Mutex
	restarts  sync.WaitGroup

	mu       sync.Mutex
	state    definitions.SessionState
	rotation definitions.Rotation
	pid      int
	client   *Client
	handler  FrameHandler
	err      error
}

func NewSession(executor definitions.Executor, serial string, handler FrameHandler, opts SessionOptions) *Session {
	opts = opts.withDefaults()
	return &Session{
		ID:       uuid.New().String(),
		serial:   serial,
		executor: executor,
		prober:   android.NewProber(executor, serial, opts.CommandTimeout),
		tunnel:   android.NewTunnel(executor, serial, opts.CommandTimeout),
		opts:     opts,
		state:    definitions.StateIdle,
		rotation: opts.Rotation,
		handler:  handler,
	}
}

func (s *Session) Serial() string {
	return s.serial
}

func (s *Session) Prober() *android.Prober {
	return s.prober
}

func (s *Session) Tunnel() *android.Tunnel {
	return s.tunnel
}

func (s *Session) State() definitions.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) IsRunning() bool {
	return s.State() == definitions.StateStreaming
}

func (s *Session) Rotation() definitions.Rotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotation
}

// Err returns the error that last moved the session to Failed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// PID returns the discovered helper pid, or 0.
func (s *Session) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid
}

func (s *Session) Banner() *definitions.Banner {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Banner()
}

// Subscribe replaces the frame subscriber, including on a live stream.
func (s *Session) Subscribe(handler FrameHandler) {
	s.mu.Lock()
	s.handler = handler
	client := s.client
	s.mu.Unlock()
	if client != nil {
		client.Subscribe(handler)
	}
}

func (s *Session) setState(next definitions.SessionState) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	s.notify(prev, next)
}

func (s *Session) notify(prev, next definitions.SessionState) {
	if prev == next {
		return
	}
	log.Debug().Str("session", s.ID).Str("serial", s.serial).
		Str("from", prev.String()).Str("to", next.String()).Msg("[Session] state changed")
	s.opts.Metrics.StateChanged(s.serial, prev, next)
	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(prev, next)
	}
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	prev := s.state
	s.state = definitions.StateFailed
	s.err = err
	s.mu.Unlock()
	log.Error().Err(err).Str("session", s.ID).Str("serial", s.serial).Msg("[Session] failed")
	s.notify(prev, definitions.StateFailed)
}

// Start runs the whole bring-up sequence. On error the session is left in
// Failed without rollback; call Stop to clean up.
func (s *Session) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.start(ctx)
}

func (s *Session) start(ctx context.Context) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if !state.CanStart() {
		return fmt.Errorf("%w: cannot start from %s", definitions.ErrInvalidState, state)
	}

	err := s.bringUp(ctx)
	s.opts.Metrics.SessionStarted(err)
	if err != nil {
		s.fail(err)
		return err
	}
	log.Info().Str("session", s.ID).Str("serial", s.serial).Int("pid", s.PID()).
		Str("rotation", s.Rotation().String()).Msg("[Session] streaming")
	return nil
}

func (s *Session) bringUp(ctx context.Context) error {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()

	s.setState(definitions.StateDeploying)
	caps, err := s.prober.Capabilities(ctx)
	if err != nil {
		return err
	}
	if err := s.deploy(ctx, caps); err != nil {
		return err
	}

	s.setState(definitions.StateValidating)
	if err := s.validate(ctx, caps); err != nil {
		return err
	}

	s.setState(definitions.StateStarting)
	rotation := s.Rotation()
	vw, vh := rotation.VirtualSize(caps.Width, caps.Height)
	launch := constants.LaunchCommand(s.opts.RemoteDir, caps.Width, caps.Height, vw, vh, int(rotation))
	if err := s.executor.Start(ctx, s.serial, "shell", launch); err != nil {
		return fmt.Errorf("launch helper: %w", err)
	}
	if err := sleep(ctx, s.opts.LaunchDelay); err != nil {
		return err
	}

	pid, ok, err := s.prober.RunningProcessID(ctx, constants.HelperName)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s on %s", definitions.ErrProcessNotFound, constants.HelperName, s.serial)
	}
	s.mu.Lock()
	s.pid = pid
	s.mu.Unlock()
	s.setState(definitions.StateProcessDiscovered)

	if err := s.tunnel.Forward(ctx, s.opts.LocalPort, s.opts.SocketName); err != nil {
		return err
	}
	s.setState(definitions.StateTunnelEstablished)

	return s.stream(ctx)
}

func (s *Session) validate(ctx context.Context, caps *definitions.Capabilities) error {
	command := constants.ValidateCommand(s.opts.RemoteDir, caps.Width, caps.Height)
	output, err := android.Shell(ctx, s.executor, s.serial, s.opts.CommandTimeout, command)
	if err != nil && !errors.Is(err, definitions.ErrCommandFailed) {
		return err
	}
	if err != nil || !helper.SelfTestPassed(output) {
		return fmt.Errorf("%w: %q", definitions.ErrValidationFailed, output)
	}
	return nil
}

func (s *Session) stream(ctx context.Context) error {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()

	var client *Client
	client = NewClient(android.Endpoint(s.opts.LocalPort), handler,
		WithDialTimeout(s.opts.DialTimeout),
		WithMaxFrameSize(s.opts.MaxFrameSize),
		WithMetrics(s.opts.Metrics),
		WithBannerHandler(s.opts.OnBanner),
		WithTerminationHandler(func(err error) { s.streamEnded(client, err) }),
	)

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	if err := client.Start(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	select {
	case <-client.Done():
		s.mu.Unlock()
		if err := client.Err(); err != nil {
			return err
		}
		return definitions.ErrStreamClosed
	default:
	}
	prev := s.state
	s.state = definitions.StateStreaming
	s.mu.Unlock()
	s.notify(prev, definitions.StateStreaming)
	return nil
}

// streamEnded handles a stream that ended without Stop being called.
func (s *Session) streamEnded(client *Client, err error) {
	s.mu.Lock()
	if s.client != client || s.state != definitions.StateStreaming {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err == nil {
		err = definitions.ErrStreamClosed
	}
	s.fail(err)
}

// Stop tears the session down from any state: it closes the stream, removes
// the forwarding rules and kills the helper. Cleanup failures are logged and
// otherwise ignored; the session always ends in Stopped.
func (s *Session) Stop(ctx context.Context) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.stop(ctx)
}

func (s *Session) stop(ctx context.Context) {
	s.mu.Lock()
	if s.state == definitions.StateStopped {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = definitions.StateStopping
	client := s.client
	pid := s.pid
	s.mu.Unlock()
	s.notify(prev, definitions.StateStopping)

	if client != nil {
		_ = client.Close()
		select {
		case <-client.Done():
		case <-ctx.Done():
		}
	}

	if err := s.tunnel.RemoveAll(ctx); err != nil {
		log.Warn().Err(err).Str("session", s.ID).Msg("[Stop] remove forward rules failed")
	}

	if pid > 0 {
		s.kill(ctx, pid)
	}

	s.mu.Lock()
	s.client = nil
	s.pid = 0
	s.state = definitions.StateStopped
	s.mu.Unlock()
	s.notify(definitions.StateStopping, definitions.StateStopped)
	log.Info().Str("session", s.ID).Str("serial", s.serial).Msg("[Session] stopped")
}

// kill signals pid only while it still belongs to the helper. If the
// process table cannot be read the kill is sent anyway.
func (s *Session) kill(ctx context.Context, pid int) {
	current, ok, err := s.prober.RunningProcessID(ctx, constants.HelperName)
	switch {
	case err != nil:
		log.Warn().Err(err).Int("pid", pid).Msg("[Stop] process lookup failed")
	case !ok:
		log.Debug().Int("pid", pid).Msg("[Stop] helper already exited")
		return
	case current != pid:
		log.Warn().Int("pid", pid).Int("current", current).Msg("[Stop] pid no longer belongs to the helper, not killing")
		return
	}

	if _, err := android.Shell(ctx, s.executor, s.serial, s.opts.CommandTimeout, constants.KillCommand(pid)); err != nil {
		log.Warn().Err(err).Int("pid", pid).Msg("[Stop] kill failed")
	}
}

// SetRotation changes the capture rotation. A live session is restarted in
// the background; Wait blocks until that restart is done.
func (s *Session) SetRotation(rotation definitions.Rotation) error {
	if _, err := definitions.ParseRotation(int(rotation)); err != nil {
		return err
	}

	s.mu.Lock()
	if s.rotation == rotation {
		s.mu.Unlock()
		return nil
	}
	s.rotation = rotation
	running := isActive(s.state)
	s.mu.Unlock()

	log.Info().Str("session", s.ID).Str("rotation", rotation.String()).Bool("restart", running).Msg("[SetRotation] rotation changed")
	if !running {
		return nil
	}

	s.restarts.Add(1)
	go func() {
		defer s.restarts.Done()
		s.restart()
	}()
	return nil
}

func (s *Session) restart() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	// a Stop issued after the rotation change wins
	if state := s.State(); state == definitions.StateStopped || state == definitions.StateIdle {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RestartTimeout)
	defer cancel()

	s.opts.Metrics.Restarted()
	s.stop(ctx)
	if err := s.start(ctx); err != nil {
		log.Error().Err(err).Str("session", s.ID).Msg("[SetRotation] restart failed")
	}
}

// Wait blocks until every scheduled rotation restart has finished.
func (s *Session) Wait() {
	s.restarts.Wait()
}

func isActive(state definitions.SessionState) bool {
	return state >= definitions.StateDeploying && state <= definitions.StateStreaming
}
