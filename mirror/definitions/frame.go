package definitions

import "time"

// Frame is one complete encoded image. Data is owned by the receiver.
type Frame struct {
	Seq        uint64
	Length     uint32
	Data       []byte
	ReceivedAt time.Time
}
