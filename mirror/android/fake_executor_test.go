package android

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/spance/minicap-go/mirror/definitions"
)

type scriptedResponse struct {
	out string
	err error
}

// scriptedExecutor answers commands from a fixed table keyed by the joined args.
type scriptedExecutor struct {
	mu        sync.Mutex
	responses map[string]scriptedResponse
	calls     []string
}

func newScriptedExecutor(responses map[string]scriptedResponse) *scriptedExecutor {
	return &scriptedExecutor{responses: responses}
}

func (s *scriptedExecutor) Execute(ctx context.Context, serial string, timeout time.Duration, args ...string) (*definitions.CommandResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.Join(args, " ")
	s.calls = append(s.calls, key)
	r := s.responses[key]
	return &definitions.CommandResult{Stdout: r.out}, r.err
}

func (s *scriptedExecutor) Start(ctx context.Context, serial string, args ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "start "+strings.Join(args, " "))
	return nil
}

func (s *scriptedExecutor) count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == key {
			n++
		}
	}
	return n
}
