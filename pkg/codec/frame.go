package codec

import (
	"encoding/binary"
	"fmt"
	"io"
)

const lengthPrefixLen = 4

// ReadFrame reads one length-prefixed frame body from r.
// A frame above maxFrame is drained from the stream and reported as
// ErrFrameTooLarge so the next frame can still be read.
func ReadFrame(r io.Reader, maxFrame int) ([]byte, error) {
	var lengthBuf [lengthPrefixLen]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return nil, err
	}
	length := int64(binary.BigEndian.Uint32(lengthBuf[:]))

	if maxFrame > 0 && length > int64(maxFrame) {
		if _, err := io.CopyN(io.Discard, r, length); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("codec: frame size %d exceeds limit %d: %w", length, maxFrame, ErrFrameTooLarge)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// WriteFrame writes body to w behind a 4-byte big-endian length prefix.
// Prefix and body go out in a single Write call.
func WriteFrame(w io.Writer, body []byte) error {
	buf := make([]byte, lengthPrefixLen+len(body))
	binary.BigEndian.PutUint32(buf[:lengthPrefixLen], uint32(len(body)))
	copy(buf[lengthPrefixLen:], body)
	_, err := w.Write(buf)
	return err
}
