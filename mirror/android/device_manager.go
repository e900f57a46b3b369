package android

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spance/minicap-go/constants"
	"github.com/spance/minicap-go/mirror/definitions"
	"github.com/spance/minicap-go/mirror/helper"
)

// ADBDevice manages the adb server's view of connected devices.
type ADBDevice struct {
	executor *ADBExecutor
}

func NewADBDevice(executor *ADBExecutor) *ADBDevice {
	return &ADBDevice{executor: executor}
}

func combined(result *definitions.CommandResult) string {
	if result == nil {
		return ""
	}
	return result.Stdout + result.Stderr
}

func (r *ADBDevice) Connect(ctx context.Context, address string) (string, error) {
	result, err := r.executor.Execute(ctx, "", 5*time.Second, "connect", address)
	if err != nil {
		log.Error().Err(err).Msg("[Connect] run cmd failed")
		return fmt.Sprintf("Connect error: %v", err), err
	}

	output := combined(result)
	lowerOutput := strings.ToLower(output)

	if strings.Contains(lowerOutput, "already connected") {
		return fmt.Sprintf("Already connected to %s", address), nil
	}
	if strings.Contains(lowerOutput, "connected to") {
		return fmt.Sprintf("Connected to %s", address), nil
	}

	return fmt.Sprintf("Connection error: %s", strings.TrimSpace(output)), fmt.Errorf("%w: connect %s", definitions.ErrCommandFailed, address)
}

// Disconnect drops one TCP/IP device, or all of them when address is empty.
func (r *ADBDevice) Disconnect(ctx context.Context, address string) (string, error) {
	cmdArgs := []string{"disconnect"}
	if len(address) > 0 {
		cmdArgs = append(cmdArgs, address)
	}

	result, err := r.executor.Execute(ctx, "", 5*time.Second, cmdArgs...)
	if err != nil {
		log.Error().Err(err).Msg("[Disconnect] run cmd failed")
		return fmt.Sprintf("Disconnect error: %v", err), err
	}
	return strings.TrimSpace(combined(result)), nil
}

// ListDevices returns the devices in the "device" state, with their model
// name filled in when it can be read.
func (r *ADBDevice) ListDevices(ctx context.Context) ([]definitions.DeviceInfo, error) {
	result, err := r.executor.Execute(ctx, "", 5*time.Second, "devices")
	if err != nil {
		log.Error().Err(err).Msg("[ListDevices] run cmd failed")
		return nil, err
	}

	devices := helper.ParseDevices(result.Stdout)
	for i := range devices {
		model, err := Shell(ctx, r.executor, devices[i].DeviceID, 5*time.Second, constants.ModelTemplate)
		if err != nil {
			log.Debug().Err(err).Str("serial", devices[i].DeviceID).Msg("[ListDevices] model lookup failed")
			continue
		}
		devices[i].Model = model
	}
	return devices, nil
}

func (r *ADBDevice) StartServer(ctx context.Context) error {
	_, err := r.executor.Execute(ctx, "", 0, "start-server")
	return err
}

func (r *ADBDevice) KillServer(ctx context.Context) error {
	_, err := r.executor.Execute(ctx, "", 0, "kill-server")
	return err
}
