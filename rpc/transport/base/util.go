package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

const (
	headerSize = 20

	// MaxFrameSize is the largest payload accepted on a connection
	MaxFrameSize = 64 << 20 // 64 MB
)

// writeFrame writes a frame to the connection with the format:
// - 8 bytes: tag (uint64, big endian)
// - 8 bytes: requestID (uint64, big endian), 0 for notifications and pushes
// - 4 bytes: data length (uint32, big endian)
// - N bytes: data payload
func writeFrame(conn net.Conn, tag uint64, requestID uint64, data []byte) error {
	if len(data) > MaxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit of %d bytes", len(data), MaxFrameSize)
	}

	// Create the header (8 bytes for tag + 8 bytes for requestID + 4 bytes for content length)
	header := make([]byte, headerSize)
	binary.BigEndian.PutUint64(header[:8], tag)
	binary.BigEndian.PutUint64(header[8:16], requestID)
	binary.BigEndian.PutUint32(header[16:20], uint32(len(data)))

	b := net.Buffers{header, data}
	_, err := b.WriteTo(conn)
	return err
}

// readFrame reads a frame from the connection using the provided buffer
// If the buffer is too small, it will allocate a new temporary buffer for the data
func readFrame(conn net.Conn, buf []byte) (uint64, uint64, []byte, error) {
	// Check if buffer is large enough for header
	if len(buf) < headerSize {
		buf = make([]byte, headerSize)
	}

	// Read header
	if _, err := io.ReadFull(conn, buf[:headerSize]); err != nil {
		return 0, 0, nil, err
	}

	// Parse header
	tag := binary.BigEndian.Uint64(buf[:8])
	requestID := binary.BigEndian.Uint64(buf[8:16])
	contentLength := binary.BigEndian.Uint32(buf[16:20])

	if contentLength > MaxFrameSize {
		return 0, 0, nil, fmt.Errorf("frame of %d bytes exceeds limit of %d bytes", contentLength, MaxFrameSize)
	}

	// If no data, return empty slice
	if contentLength == 0 {
		return tag, requestID, []byte{}, nil
	}

	// Check if buffer is large enough for data
	if len(buf) < int(contentLength) {
		buf = make([]byte, contentLength)
	}

	// Read data
	if _, err := io.ReadFull(conn, buf[:contentLength]); err != nil {
		return 0, 0, nil, err
	}

	return tag, requestID, buf[:contentLength], nil
}
