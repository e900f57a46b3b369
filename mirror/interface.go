package mirror

import (
	"context"

	"github.com/spance/minicap-go/mirror/android"
	"github.com/spance/minicap-go/mirror/definitions"
	"github.com/spance/minicap-go/mirror/minicap"
)

// Controller is the session control surface offered to a presentation layer.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)
	SetRotation(rotation definitions.Rotation) error
	IsRunning() bool
	State() definitions.SessionState
}

// DeviceManager manages device connections and the adb server.
type DeviceManager interface {
	Connect(ctx context.Context, address string) (string, error)
	Disconnect(ctx context.Context, address string) (string, error)
	ListDevices(ctx context.Context) ([]definitions.DeviceInfo, error)
	StartServer(ctx context.Context) error
	KillServer(ctx context.Context) error
}

var (
	_ Controller    = (*minicap.Session)(nil)
	_ DeviceManager = (*android.ADBDevice)(nil)
)
