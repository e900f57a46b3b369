package minicap

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/spance/minicap-go/mirror/definitions"
)

// ParseBanner decodes the fixed banner layout. buf must hold at least
// definitions.BannerSize bytes.
func ParseBanner(buf []byte) *definitions.Banner {
	return &definitions.Banner{
		Version:       buf[0],
		Length:        buf[1],
		PID:           binary.LittleEndian.Uint32(buf[2:6]),
		RealWidth:     binary.LittleEndian.Uint32(buf[6:10]),
		RealHeight:    binary.LittleEndian.Uint32(buf[10:14]),
		VirtualWidth:  binary.LittleEndian.Uint32(buf[14:18]),
		VirtualHeight: binary.LittleEndian.Uint32(buf[18:22]),
		Orientation:   definitions.Rotation(int(buf[22]) * 90),
		Quirks:        buf[23],
	}
}

// ReadBanner reads the banner that opens every connection. Header bytes
// beyond the known layout, as declared by the banner's length field, are
// discarded.
func ReadBanner(r io.Reader) (*definitions.Banner, error) {
	buf := make([]byte, definitions.BannerSize)
	n, err := io.ReadFull(r, buf)
	if err != nil {
		return nil, readError(definitions.ErrIncompleteBanner, definitions.BannerSize, n, err)
	}

	banner := ParseBanner(buf)
	if extra := int(banner.Length) - definitions.BannerSize; extra > 0 {
		m, err := io.CopyN(io.Discard, r, int64(extra))
		if err != nil {
			return nil, readError(definitions.ErrIncompleteBanner, int(banner.Length), definitions.BannerSize+int(m), err)
		}
	}
	return banner, nil
}

// ReadFrame reads one length-prefixed frame. It returns io.EOF only when the
// stream ends cleanly on a frame boundary.
func ReadFrame(r io.Reader, maxSize uint32) (*definitions.Frame, error) {
	var prefix [4]byte
	n, err := io.ReadFull(r, prefix[:])
	if err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			return nil, io.EOF
		}
		return nil, readError(definitions.ErrTruncatedFrame, len(prefix), n, err)
	}

	length := binary.LittleEndian.Uint32(prefix[:])
	if maxSize > 0 && length > maxSize {
		return nil, &definitions.ProtocolError{Kind: definitions.ErrFrameTooLarge, Expected: int(maxSize), Read: int(length)}
	}

	data := make([]byte, length)
	n, err = io.ReadFull(r, data)
	if err != nil {
		return nil, readError(definitions.ErrTruncatedFrame, int(length), n, err)
	}
	return &definitions.Frame{Length: length, Data: data}, nil
}

// readError maps a short read to a ProtocolError of the given kind and any
// other failure to ErrTransport.
func readError(kind error, expected, read int, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &definitions.ProtocolError{Kind: kind, Expected: expected, Read: read, Err: err}
	}
	return fmt.Errorf("%w: %w", definitions.ErrTransport, err)
}
