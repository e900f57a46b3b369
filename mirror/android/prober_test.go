package android

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/spance/minicap-go/constants"
	"github.com/spance/minicap-go/mirror/definitions"
)

func TestProberCapabilitiesCached(t *testing.T) {
	exec := newScriptedExecutor(map[string]scriptedResponse{
		"shell wm size":                      {out: "Physical size: 1080x2400\n"},
		"shell getprop ro.product.cpu.abi":   {out: "arm64-v8a\n"},
		"shell getprop ro.build.version.sdk": {out: "30\n"},
	})
	p := NewProber(exec, "emulator-5554", 0)

	for i := 0; i < 3; i++ {
		caps, err := p.Capabilities(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if caps.Width != 1080 || caps.Height != 2400 || caps.Abi != "arm64-v8a" || caps.APILevel != 30 {
			t.Fatalf("unexpected capabilities %+v", caps)
		}
	}
	if n := exec.count("shell wm size"); n != 1 {
		t.Errorf("display size queried %d times, want 1", n)
	}
}

func TestProberDisplaySizeParseError(t *testing.T) {
	exec := newScriptedExecutor(map[string]scriptedResponse{
		"shell wm size": {out: "Can't find service: window"},
	})
	p := NewProber(exec, "emulator-5554", 0)
	if _, _, err := p.DisplaySize(context.Background()); !errors.Is(err, definitions.ErrProbeParse) {
		t.Fatalf("expected ErrProbeParse, got %v", err)
	}
}

func TestProberAPILevelMustBePositive(t *testing.T) {
	for _, out := range []string{"", "0", "Q"} {
		exec := newScriptedExecutor(map[string]scriptedResponse{
			"shell getprop ro.build.version.sdk": {out: out},
		})
		p := NewProber(exec, "emulator-5554", 0)
		if _, err := p.APILevel(context.Background()); !errors.Is(err, definitions.ErrProbeParse) {
			t.Errorf("%q: expected ErrProbeParse, got %v", out, err)
		}
	}
}

func TestProberCommandErrorSurfaces(t *testing.T) {
	exec := newScriptedExecutor(map[string]scriptedResponse{
		"shell getprop ro.product.cpu.abi": {err: fmt.Errorf("%w: after 10s", definitions.ErrCommandTimeout)},
	})
	p := NewProber(exec, "emulator-5554", 0)
	if _, err := p.Abi(context.Background()); !errors.Is(err, definitions.ErrCommandTimeout) {
		t.Fatalf("expected ErrCommandTimeout, got %v", err)
	}
}

func TestProberProps(t *testing.T) {
	exec := newScriptedExecutor(map[string]scriptedResponse{
		"shell getprop": {out: "[ro.product.model]: [Pixel 7]\n[ro.build.version.sdk]: [34]\n"},
	})
	p := NewProber(exec, "emulator-5554", 0)
	props, err := p.Props(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	props["ro.product.model"] = "changed"
	again, _ := p.Props(context.Background())
	if again["ro.product.model"] != "Pixel 7" {
		t.Errorf("cached props were mutated: %v", again)
	}
	if n := exec.count("shell getprop"); n != 1 {
		t.Errorf("props queried %d times, want 1", n)
	}
}

func TestProberInstalledFiles(t *testing.T) {
	exec := newScriptedExecutor(map[string]scriptedResponse{
		"shell ls /data/local/tmp": {out: "minicap\nminicap.so\nfoo.apk\n"},
	})
	p := NewProber(exec, "emulator-5554", 0)
	files, err := p.InstalledFiles(context.Background(), constants.RemoteDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 3 || files[0] != "minicap" {
		t.Errorf("unexpected files %v", files)
	}
}

func TestProberRunningProcessID(t *testing.T) {
	cmd := "shell " + constants.ProcessCommand(constants.HelperName)
	exec := newScriptedExecutor(map[string]scriptedResponse{
		cmd: {out: "shell  4321 1 2151536 12345 0 0 S minicap\n"},
	})
	p := NewProber(exec, "emulator-5554", 0)
	pid, ok, err := p.RunningProcessID(context.Background(), constants.HelperName)
	if err != nil || !ok || pid != 4321 {
		t.Fatalf("got pid=%d ok=%v err=%v", pid, ok, err)
	}
}

func TestProberRunningProcessIDMissing(t *testing.T) {
	cmd := "shell " + constants.ProcessCommand(constants.HelperName)
	exec := newScriptedExecutor(map[string]scriptedResponse{
		cmd: {err: fmt.Errorf("%w: exit status 1", definitions.ErrCommandFailed)},
	})
	p := NewProber(exec, "emulator-5554", 0)
	pid, ok, err := p.RunningProcessID(context.Background(), constants.HelperName)
	if err != nil || ok || pid != 0 {
		t.Fatalf("got pid=%d ok=%v err=%v", pid, ok, err)
	}
}

func TestProberRunningProcessIDFailedStatusWithRow(t *testing.T) {
	cmd := "shell " + constants.ProcessCommand(constants.HelperName)
	exec := newScriptedExecutor(map[string]scriptedResponse{
		cmd: {
			out: "shell 4321 1 2151536 12345 0 0 S minicap\n",
			err: fmt.Errorf("%w: exit status 1", definitions.ErrCommandFailed),
		},
	})
	p := NewProber(exec, "emulator-5554", 0)
	pid, ok, err := p.RunningProcessID(context.Background(), constants.HelperName)
	if err != nil || !ok || pid != 4321 {
		t.Fatalf("got pid=%d ok=%v err=%v", pid, ok, err)
	}
}

func TestProberRunningProcessIDTimeout(t *testing.T) {
	cmd := "shell " + constants.ProcessCommand(constants.HelperName)
	exec := newScriptedExecutor(map[string]scriptedResponse{
		cmd: {err: fmt.Errorf("%w: after 10s", definitions.ErrCommandTimeout)},
	})
	p := NewProber(exec, "emulator-5554", 0)
	if _, _, err := p.RunningProcessID(context.Background(), constants.HelperName); !errors.Is(err, definitions.ErrCommandTimeout) {
		t.Fatalf("expected ErrCommandTimeout, got %v", err)
	}
}
