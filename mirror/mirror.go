package mirror

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spance/minicap-go/metrics"
	"github.com/spance/minicap-go/mirror/definitions"
	"github.com/spance/minicap-go/mirror/minicap"
	"github.com/spance/minicap-go/viewer"
)

const stopTimeout = 15 * time.Second

type Options struct {
	// ViewerAddr is the listen address of the browser viewer; empty disables it.
	ViewerAddr string
	Session    minicap.SessionOptions
	Metrics    *metrics.Metrics
}

// Mirror streams one device's screen to the viewer hub until the context
// ends or the session fails.
type Mirror struct {
	Session *minicap.Session
	Hub     *viewer.Hub

	viewerAddr string
	failed     chan struct{}
}

func New(executor definitions.Executor, serial string, opts Options) *Mirror {
	m := &Mirror{
		viewerAddr: opts.ViewerAddr,
		failed:     make(chan struct{}, 1),
	}

	sessionOpts := opts.Session
	sessionOpts.Metrics = opts.Metrics
	onState := sessionOpts.OnStateChange
	sessionOpts.OnStateChange = func(prev, next definitions.SessionState) {
		if onState != nil {
			onState(prev, next)
		}
		if next == definitions.StateFailed {
			select {
			case m.failed <- struct{}{}:
			default:
			}
		}
	}
	onBanner := sessionOpts.OnBanner
	sessionOpts.OnBanner = func(banner *definitions.Banner) {
		if onBanner != nil {
			onBanner(banner)
		}
		m.Hub.SetBanner(banner)
	}

	m.Session = minicap.NewSession(executor, serial, nil, sessionOpts)
	m.Hub = viewer.NewHub(m.Session.SetRotation, opts.Metrics)
	m.Session.Subscribe(m.Hub)
	return m
}

// Run starts the session and blocks until ctx is done or the session
// fails. The session is always stopped before Run returns.
func (m *Mirror) Run(ctx context.Context) error {
	defer m.stop()

	if err := m.Session.Start(ctx); err != nil {
		return err
	}
	if caps, err := m.Session.Prober().Capabilities(ctx); err == nil {
		log.Info().Str("serial", m.Session.Serial()).Str("abi", caps.Abi).Int("sdk", caps.APILevel).
			Int("width", caps.Width).Int("height", caps.Height).Msg("[Mirror] streaming")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	if m.viewerAddr != "" {
		go func() { errc <- m.Hub.Serve(ctx, m.viewerAddr) }()
	}

	select {
	case <-ctx.Done():
		return nil
	case <-m.failed:
		return m.Session.Err()
	case err := <-errc:
		if err == nil {
			err = errors.New("viewer stopped")
		}
		return err
	}
}

func (m *Mirror) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	m.Session.Stop(ctx)
	m.Session.Wait()
	m.Hub.Close()
	log.Info().Str("session", m.Session.ID).Str("serial", m.Session.Serial()).Msg("[Mirror] stopped")
}
