package android

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spance/minicap-go/mirror/definitions"
)

type ForwardRule struct {
	LocalPort int    `json:"local_port"`
	Remote    string `json:"remote"`
}

// Tunnel manages the adb forwarding rules it created for one device.
type Tunnel struct {
	serial   string
	executor definitions.Executor
	timeout  time.Duration

	mu    sync.Mutex
	rules map[int]string
}

func NewTunnel(executor definitions.Executor, serial string, timeout time.Duration) *Tunnel {
	return &Tunnel{
		serial:   serial,
		executor: executor,
		timeout:  timeout,
		rules:    make(map[int]string),
	}
}

// Endpoint is the host address of a forwarded local port.
func Endpoint(localPort int) string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(localPort))
}

// Forward maps tcp:localPort to the device's abstract socket. Repeating an
// existing mapping does nothing.
func (t *Tunnel) Forward(ctx context.Context, localPort int, socketName string) error {
	remote := "localabstract:" + socketName

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rules[localPort] == remote {
		return nil
	}

	local := "tcp:" + strconv.Itoa(localPort)
	if _, err := t.executor.Execute(ctx, t.serial, t.timeout, "forward", local, remote); err != nil {
		return fmt.Errorf("forward %s to %s: %w", local, remote, err)
	}
	t.rules[localPort] = remote
	log.Debug().Str("serial", t.serial).Str("local", local).Str("remote", remote).Msg("[Forward] rule added")
	return nil
}

// RemoveAll removes every rule this tunnel created. The owned set is
// cleared even when some removals fail.
func (t *Tunnel) RemoveAll(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	for port := range t.rules {
		local := "tcp:" + strconv.Itoa(port)
		if _, err := t.executor.Execute(ctx, t.serial, t.timeout, "forward", "--remove", local); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", local, err))
		}
	}
	t.rules = make(map[int]string)
	return errors.Join(errs...)
}

func (t *Tunnel) Rules() []ForwardRule {
	t.mu.Lock()
	defer t.mu.Unlock()
	rules := make([]ForwardRule, 0, len(t.rules))
	for port, remote := range t.rules {
		rules = append(rules, ForwardRule{LocalPort: port, Remote: remote})
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].LocalPort < rules[j].LocalPort })
	return rules
}
