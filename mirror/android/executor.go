package android

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spance/minicap-go/constants"
	"github.com/spance/minicap-go/mirror/definitions"
)

const (
	adbPath = "adb"
)

// ResolveADBPath picks the adb binary: an explicit path first, then
// $ANDROID_HOME/platform-tools/adb, then adb from PATH.
func ResolveADBPath(configured string) string {
	if configured != "" {
		return configured
	}
	if home := os.Getenv("ANDROID_HOME"); home != "" {
		return filepath.Join(home, "platform-tools", adbPath)
	}
	return adbPath
}

// ADBExecutor runs adb commands. Commands addressed to the same serial never
// overlap; different serials run concurrently.
type ADBExecutor struct {
	path    string
	timeout time.Duration

	mu         sync.Mutex
	locks      map[string]*sync.Mutex
	background map[*exec.Cmd]struct{}
}

func NewADBExecutor(path string, timeout time.Duration) *ADBExecutor {
	if timeout <= 0 {
		timeout = constants.DefaultCommandTimeout
	}
	return &ADBExecutor{
		path:       ResolveADBPath(path),
		timeout:    timeout,
		locks:      make(map[string]*sync.Mutex),
		background: make(map[*exec.Cmd]struct{}),
	}
}

func (e *ADBExecutor) Path() string {
	return e.path
}

func (e *ADBExecutor) lockFor(serial string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[serial]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[serial] = lock
	}
	return lock
}

func (e *ADBExecutor) GetADBPrefix(serial string) []string {
	if serial != "" {
		return []string{"-s", serial}
	}
	return nil
}

func (e *ADBExecutor) Execute(ctx context.Context, serial string, timeout time.Duration, args ...string) (*definitions.CommandResult, error) {
	if timeout <= 0 {
		timeout = e.timeout
	}

	lock := e.lockFor(serial)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmdArgs := append(e.GetADBPrefix(serial), args...)
	log.Debug().Str("cmd", fmt.Sprintf("[Execute] run cmd: %s %s", e.path, strings.Join(cmdArgs, " "))).Msg("")

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.path, cmdArgs...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	result := &definitions.CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: -1,
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.Error().Str("serial", serial).Dur("timeout", timeout).Msg("[Execute] run cmd timed out")
		return result, fmt.Errorf("%w: adb %s (after %s)", definitions.ErrCommandTimeout, strings.Join(args, " "), timeout)
	}
	if err != nil {
		log.Error().Err(err).Str("serial", serial).Str("output", result.Output()).Msg("[Execute] run cmd failed")
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return result, fmt.Errorf("%w: adb %s: exit status %d: %s", definitions.ErrCommandFailed, strings.Join(args, " "), result.ExitCode, result.Output())
		}
		return result, fmt.Errorf("%w: adb %s: %v", definitions.ErrCommandFailed, strings.Join(args, " "), err)
	}

	log.Debug().Str("output", result.Output()).Msg("[Execute] raw output")
	return result, nil
}

// Start launches adb without waiting. The process is not bound to ctx
// because it is expected to outlive the call; Close kills any still running.
func (e *ADBExecutor) Start(ctx context.Context, serial string, args ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := e.lockFor(serial)
	lock.Lock()
	defer lock.Unlock()

	cmdArgs := append(e.GetADBPrefix(serial), args...)
	log.Debug().Str("cmd", fmt.Sprintf("[Start] run cmd: %s %s", e.path, strings.Join(cmdArgs, " "))).Msg("")

	cmd := exec.Command(e.path, cmdArgs...)
	if err := cmd.Start(); err != nil {
		log.Error().Err(err).Msg("[Start] run cmd failed")
		return fmt.Errorf("%w: adb %s: %v", definitions.ErrCommandFailed, strings.Join(args, " "), err)
	}

	e.mu.Lock()
	e.background[cmd] = struct{}{}
	e.mu.Unlock()

	go func() {
		err := cmd.Wait()
		e.mu.Lock()
		delete(e.background, cmd)
		e.mu.Unlock()
		log.Debug().Err(err).Str("serial", serial).Str("cmd", strings.Join(args, " ")).Msg("[Start] background cmd exited")
	}()
	return nil
}

// Close kills background adb processes started by Start.
func (e *ADBExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for cmd := range e.background {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
	return nil
}

// Shell runs a remote shell command and returns its meaningful output.
func Shell(ctx context.Context, executor definitions.Executor, serial string, timeout time.Duration, command string) (string, error) {
	result, err := executor.Execute(ctx, serial, timeout, "shell", command)
	return result.Output(), err
}
