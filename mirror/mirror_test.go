package mirror

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spance/minicap-go/constants"
	"github.com/spance/minicap-go/mirror/definitions"
	"github.com/spance/minicap-go/mirror/minicap"
)

// installedDevice answers as a device that already has the helper deployed.
type installedDevice struct {
	mu      sync.Mutex
	running bool
	wmSize  string
}

func (d *installedDevice) Execute(ctx context.Context, serial string, timeout time.Duration, args ...string) (*definitions.CommandResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := ""
	if args[0] == "shell" {
		switch command := args[1]; {
		case command == constants.DisplaySizeTemplate:
			out = d.wmSize
		case command == constants.AbiTemplate:
			out = "x86_64"
		case command == constants.APILevelTemplate:
			out = "33"
		case strings.HasPrefix(command, "ls "):
			out = "minicap\nminicap.so"
		case strings.HasSuffix(command, " -t"):
			out = "ok"
		case strings.HasPrefix(command, "ps "):
			if !d.running {
				return &definitions.CommandResult{ExitCode: 1}, fmt.Errorf("%w: grep", definitions.ErrCommandFailed)
			}
			out = "shell 777 1 100 100 0 0 S minicap"
		case strings.HasPrefix(command, "kill "):
			d.running = false
		}
	}
	return &definitions.CommandResult{Stdout: out}, nil
}

func (d *installedDevice) Start(ctx context.Context, serial string, args ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = true
	return nil
}

func (d *installedDevice) isRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func listenHelper(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	var mu sync.Mutex
	var conns []net.Conn
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, conn := range conns {
			_ = conn.Close()
		}
	})
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
			banner := make([]byte, definitions.BannerSize)
			banner[0], banner[1] = 1, definitions.BannerSize
			binary.LittleEndian.PutUint32(banner[2:], 777)
			_, _ = conn.Write(banner)
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestMirrorRunUntilCancelled(t *testing.T) {
	device := &installedDevice{wmSize: "Physical size: 720x1280"}
	opts := Options{Session: minicap.SessionOptions{LocalPort: listenHelper(t), DialTimeout: time.Second}}
	m := New(device, "emulator-5554", opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for m.Session.Banner() == nil {
		if time.Now().After(deadline) {
			t.Fatalf("no banner, state %s", m.Session.State())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return")
	}
	if m.Session.State() != definitions.StateStopped {
		t.Errorf("state = %s", m.Session.State())
	}
	if device.isRunning() {
		t.Errorf("helper left running")
	}
}

func TestMirrorRunStartFailure(t *testing.T) {
	device := &installedDevice{wmSize: "no display"}
	m := New(device, "emulator-5554", Options{})

	err := m.Run(context.Background())
	if !errors.Is(err, definitions.ErrProbeParse) {
		t.Fatalf("expected probe error, got %v", err)
	}
	if m.Session.State() != definitions.StateStopped {
		t.Errorf("state = %s", m.Session.State())
	}
}
