package definitions

type SessionState int

const (
	StateIdle SessionState = iota
	StateDeploying
	StateValidating
	StateStarting
	StateProcessDiscovered
	StateTunnelEstablished
	StateStreaming
	StateStopping
	StateStopped
	StateFailed
)

var stateNames = map[SessionState]string{
	StateIdle:              "idle",
	StateDeploying:         "deploying",
	StateValidating:        "validating",
	StateStarting:          "starting",
	StateProcessDiscovered: "process_discovered",
	StateTunnelEstablished: "tunnel_established",
	StateStreaming:         "streaming",
	StateStopping:          "stopping",
	StateStopped:           "stopped",
	StateFailed:            "failed",
}

func (s SessionState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// CanStart reports whether Start may be called from this state.
func (s SessionState) CanStart() bool {
	return s == StateIdle || s == StateStopped
}
