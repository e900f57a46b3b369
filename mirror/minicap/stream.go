package minicap

import (
	"io"
	"time"

	"github.com/spance/minicap-go/mirror/definitions"
)

// FrameHandler receives frames in arrival order. The frame's buffer belongs
// to the handler once delivered.
type FrameHandler interface {
	HandleFrame(frame *definitions.Frame)
}

type FrameHandlerFunc func(frame *definitions.Frame)

func (f FrameHandlerFunc) HandleFrame(frame *definitions.Frame) {
	f(frame)
}

// Stream reads the banner and then every frame from r, handing each to
// handler. It returns nil when r ends cleanly between frames.
func Stream(r io.Reader, handler FrameHandler, maxFrameSize uint32, onBanner func(*definitions.Banner)) error {
	banner, err := ReadBanner(r)
	if err != nil {
		return err
	}
	if onBanner != nil {
		onBanner(banner)
	}

	var seq uint64
	for {
		frame, err := ReadFrame(r, maxFrameSize)
		// a ProtocolError may wrap io.EOF; only the bare sentinel is a clean end
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		seq++
		frame.Seq = seq
		frame.ReceivedAt = time.Now()
		if handler != nil {
			handler.HandleFrame(frame)
		}
	}
}
