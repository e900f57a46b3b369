package constants

import "time"

const (
	// RemoteDir is where the helper binaries live on the device.
	RemoteDir = "/data/local/tmp"

	HelperName       = "minicap"
	HelperNoPIEName  = "minicap-nopie"
	HelperLibrary    = "minicap.so"
	HelperSocketName = "minicap"

	DefaultLocalPort = 1313

	// Devices below this API level cannot run position-independent executables.
	MinPIEAPILevel = 16
)

// RequiredFiles must be present in RemoteDir before the helper can run.
var RequiredFiles = []string{HelperName, HelperNoPIEName, HelperLibrary}

const (
	DefaultCommandTimeout = 10 * time.Second
	DefaultPushTimeout    = 60 * time.Second
	DefaultSettleDelay    = time.Second
	DefaultLaunchDelay    = 300 * time.Millisecond
	DefaultDialTimeout    = 5 * time.Second
	DefaultMaxFrameSize   = 64 << 20
)
