package definitions

type ConnectionType string

const (
	USB    ConnectionType = "usb"
	Remote ConnectionType = "remote"
)

// DeviceInfo identifies one connected device by its adb serial.
type DeviceInfo struct {
	DeviceID       string         `json:"device_id"`
	Status         string         `json:"status"`
	ConnectionType ConnectionType `json:"connection_type"`
	Model          string         `json:"model,omitempty"`
}

// Capabilities are measured once per device and never re-queried.
type Capabilities struct {
	Width    int               `json:"width"`
	Height   int               `json:"height"`
	Abi      string            `json:"abi"`
	APILevel int               `json:"api_level"`
	Props    map[string]string `json:"props,omitempty"`
}
