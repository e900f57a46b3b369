package android

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spance/minicap-go/constants"
	"github.com/spance/minicap-go/mirror/definitions"
	"github.com/spance/minicap-go/mirror/helper"
)

// Prober reads a device's display, ABI, API level, files and processes by
// scraping shell output. Display, ABI, API level and properties are queried
// at most once and cached.
type Prober struct {
	serial   string
	executor definitions.Executor
	timeout  time.Duration

	mu       sync.Mutex
	width    int
	height   int
	abi      string
	apiLevel int
	props    map[string]string
}

func NewProber(executor definitions.Executor, serial string, timeout time.Duration) *Prober {
	return &Prober{
		serial:   serial,
		executor: executor,
		timeout:  timeout,
	}
}

func (p *Prober) Serial() string {
	return p.serial
}

func (p *Prober) shell(ctx context.Context, command string) (string, error) {
	return Shell(ctx, p.executor, p.serial, p.timeout, command)
}

// DisplaySize returns the physical display size in pixels.
func (p *Prober) DisplaySize(ctx context.Context) (int, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.width > 0 && p.height > 0 {
		return p.width, p.height, nil
	}

	output, err := p.shell(ctx, constants.DisplaySizeTemplate)
	if err != nil {
		return 0, 0, fmt.Errorf("query display size: %w", err)
	}
	width, height, ok := helper.ParseDisplaySize(output)
	if !ok {
		log.Error().Str("serial", p.serial).Str("output", output).Msg("[DisplaySize] unexpected output")
		return 0, 0, fmt.Errorf("%w: display size from %q", definitions.ErrProbeParse, output)
	}
	p.width, p.height = width, height
	return width, height, nil
}

func (p *Prober) Abi(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.abi != "" {
		return p.abi, nil
	}

	output, err := p.shell(ctx, constants.AbiTemplate)
	if err != nil {
		return "", fmt.Errorf("query abi: %w", err)
	}
	if output == "" {
		return "", fmt.Errorf("%w: empty abi", definitions.ErrProbeParse)
	}
	p.abi = output
	return output, nil
}

// APILevel returns the OS API level, which must be a positive integer.
func (p *Prober) APILevel(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.apiLevel > 0 {
		return p.apiLevel, nil
	}

	output, err := p.shell(ctx, constants.APILevelTemplate)
	if err != nil {
		return 0, fmt.Errorf("query api level: %w", err)
	}
	level, err := helper.ParsePositiveInt(output)
	if err != nil {
		return 0, fmt.Errorf("%w: api level from %q", definitions.ErrProbeParse, output)
	}
	p.apiLevel = level
	return level, nil
}

// Props returns a copy of the device's system properties.
func (p *Prober) Props(ctx context.Context) (map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.props == nil {
		output, err := p.shell(ctx, constants.PropsTemplate)
		if err != nil {
			return nil, fmt.Errorf("query props: %w", err)
		}
		p.props = helper.ParseProps(output)
	}
	return lo.Assign(p.props), nil
}

// Capabilities probes display size, ABI and API level.
func (p *Prober) Capabilities(ctx context.Context) (*definitions.Capabilities, error) {
	width, height, err := p.DisplaySize(ctx)
	if err != nil {
		return nil, err
	}
	abi, err := p.Abi(ctx)
	if err != nil {
		return nil, err
	}
	apiLevel, err := p.APILevel(ctx)
	if err != nil {
		return nil, err
	}
	return &definitions.Capabilities{
		Width:    width,
		Height:   height,
		Abi:      abi,
		APILevel: apiLevel,
	}, nil
}

// InstalledFiles lists the file names in dir.
func (p *Prober) InstalledFiles(ctx context.Context, dir string) ([]string, error) {
	output, err := p.shell(ctx, constants.ListFilesCommand(dir))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	return helper.ParseFileList(output), nil
}

// RunningProcessID finds the pid of the first process whose command
// contains name. A miss is reported as ok == false, not as an error.
func (p *Prober) RunningProcessID(ctx context.Context, name string) (int, bool, error) {
	output, err := p.shell(ctx, constants.ProcessCommand(name))
	// the exit status is the trailing grep's, so a failed command can still
	// carry the matching row from the first listing
	if err != nil && !errors.Is(err, definitions.ErrCommandFailed) {
		return 0, false, fmt.Errorf("list processes: %w", err)
	}
	entry, ok := helper.FindProcess(output, name)
	if !ok {
		return 0, false, nil
	}
	return entry.PID, true, nil
}
