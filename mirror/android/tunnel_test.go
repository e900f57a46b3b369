package android

import (
	"context"
	"errors"
	"testing"

	"github.com/spance/minicap-go/mirror/definitions"
)

func TestTunnelForwardIdempotent(t *testing.T) {
	exec := newScriptedExecutor(nil)
	tunnel := NewTunnel(exec, "emulator-5554", 0)

	for i := 0; i < 3; i++ {
		if err := tunnel.Forward(context.Background(), 1313, "minicap"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if n := exec.count("forward tcp:1313 localabstract:minicap"); n != 1 {
		t.Errorf("forward issued %d times, want 1", n)
	}
	rules := tunnel.Rules()
	if len(rules) != 1 || rules[0].LocalPort != 1313 || rules[0].Remote != "localabstract:minicap" {
		t.Errorf("unexpected rules %+v", rules)
	}
}

func TestTunnelRemoveAll(t *testing.T) {
	exec := newScriptedExecutor(map[string]scriptedResponse{
		"forward --remove tcp:1314": {err: definitions.ErrCommandFailed},
	})
	tunnel := NewTunnel(exec, "emulator-5554", 0)
	_ = tunnel.Forward(context.Background(), 1313, "minicap")
	_ = tunnel.Forward(context.Background(), 1314, "minitouch")

	err := tunnel.RemoveAll(context.Background())
	if !errors.Is(err, definitions.ErrCommandFailed) {
		t.Fatalf("expected joined ErrCommandFailed, got %v", err)
	}
	if exec.count("forward --remove tcp:1313") != 1 || exec.count("forward --remove tcp:1314") != 1 {
		t.Errorf("expected both rules removed, calls: %v", exec.calls)
	}
	if len(tunnel.Rules()) != 0 {
		t.Errorf("rules should be cleared after RemoveAll")
	}

	// nothing owned, nothing issued
	if err := tunnel.RemoveAll(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestTunnelForwardFailure(t *testing.T) {
	exec := newScriptedExecutor(map[string]scriptedResponse{
		"forward tcp:1313 localabstract:minicap": {err: definitions.ErrCommandFailed},
	})
	tunnel := NewTunnel(exec, "emulator-5554", 0)
	if err := tunnel.Forward(context.Background(), 1313, "minicap"); !errors.Is(err, definitions.ErrCommandFailed) {
		t.Fatalf("expected ErrCommandFailed, got %v", err)
	}
	if len(tunnel.Rules()) != 0 {
		t.Errorf("failed forward must not be recorded")
	}
}

func TestEndpoint(t *testing.T) {
	if got := Endpoint(1313); got != "127.0.0.1:1313" {
		t.Errorf("got %q", got)
	}
}
