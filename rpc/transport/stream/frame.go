package stream

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
)

const frameHeaderSize = 12

// writeFrame writes a frame to w with the format:
// - 8 bytes: requestID (uint64, big endian)
// - 4 bytes: data length (uint32, big endian)
// - N bytes: data payload
func writeFrame(w io.Writer, requestID uint64, data []byte) error {
	if uint64(len(data)) > math.MaxUint32 {
		return fmt.Errorf("frame for request %d too large: %d bytes", requestID, len(data))
	}

	header := make([]byte, frameHeaderSize)
	binary.BigEndian.PutUint64(header[:8], requestID)
	binary.BigEndian.PutUint32(header[8:12], uint32(len(data)))

	b := net.Buffers{header, data}
	_, err := b.WriteTo(w)
	return err
}

// readFrame reads a frame from r using buf as scratch space.
// If buf is too small a larger one is allocated; the returned buffer should be
// passed to the next call so it can be reused.
func readFrame(r io.Reader, buf []byte) (requestID uint64, data []byte, scratch []byte, err error) {
	if len(buf) < frameHeaderSize {
		buf = make([]byte, 4096)
	}

	if _, err := io.ReadFull(r, buf[:frameHeaderSize]); err != nil {
		return 0, nil, buf, err
	}

	requestID = binary.BigEndian.Uint64(buf[:8])
	contentLength := int(binary.BigEndian.Uint32(buf[8:12]))

	if contentLength == 0 {
		return requestID, []byte{}, buf, nil
	}

	if len(buf) < contentLength {
		buf = make([]byte, contentLength)
	}

	if _, err := io.ReadFull(r, buf[:contentLength]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, nil, buf, err
	}

	return requestID, buf[:contentLength], buf, nil
}
