package wire

import "errors"

var (
	// ErrOutOfBounds is returned when a read or write would pass the end
	// of the 512-byte packet buffer.
	ErrOutOfBounds = errors.New("end of buffer")

	// ErrInvalidPacket is returned for malformed wire data: compression
	// pointer cycles, labels over 63 octets, or names over 255 octets.
	// A datagram shorter than its section counts claim is not detected as
	// such: reads past its end see the buffer's zero padding.
	ErrInvalidPacket = errors.New("invalid packet")

	// ErrInvalidLabel is returned when asked to serialise a name
	// containing a label longer than 63 octets.
	ErrInvalidLabel = errors.New("invalid label")
)
