package mqtt311

import (
	"encoding/binary"
	"errors"
	"io"
	"unicode/utf8"
)

// Encoding errors.
var (
	ErrStringTooLong   = errors.New("string exceeds maximum length of 65535 bytes")
	ErrInvalidUTF8     = errors.New("invalid UTF-8 string")
	ErrVarintTooLarge  = errors.New("variable byte integer exceeds maximum value")
	ErrVarintMalformed = errors.New("malformed variable byte integer")
	ErrTruncatedPacket = errors.New("packet body truncated")
)

const (
	maxUint16 = 65535
	maxVarint = 268435455 // 0x0FFFFFFF
)

// bodyWriter accumulates a packet body before it is framed with the
// fixed header.
type bodyWriter struct {
	data []byte
}

func (w *bodyWriter) writeByte(b byte) {
	w.data = append(w.data, b)
}

func (w *bodyWriter) writeUint16(v uint16) {
	w.data = append(w.data, byte(v>>8), byte(v))
}

func (w *bodyWriter) writeString(s string) error {
	if len(s) > maxUint16 {
		return ErrStringTooLong
	}
	if !utf8.ValidString(s) {
		return ErrInvalidUTF8
	}
	w.writeUint16(uint16(len(s)))
	w.data = append(w.data, s...)
	return nil
}

func (w *bodyWriter) writeBytes(b []byte) error {
	if len(b) > maxUint16 {
		return ErrStringTooLong
	}
	w.writeUint16(uint16(len(b)))
	w.data = append(w.data, b...)
	return nil
}

// bodyReader consumes a packet body.
type bodyReader struct {
	data []byte
	pos  int
}

func (r *bodyReader) remaining() int {
	return len(r.data) - r.pos
}

func (r *bodyReader) readByte() (byte, error) {
	if r.remaining() < 1 {
		return 0, ErrTruncatedPacket
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *bodyReader) readUint16() (uint16, error) {
	if r.remaining() < 2 {
		return 0, ErrTruncatedPacket
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *bodyReader) readString() (string, error) {
	b, err := r.readBytes()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}

func (r *bodyReader) readBytes() ([]byte, error) {
	length, err := r.readUint16()
	if err != nil {
		return nil, err
	}
	if r.remaining() < int(length) {
		return nil, ErrTruncatedPacket
	}
	b := r.data[r.pos : r.pos+int(length)]
	r.pos += int(length)
	return b, nil
}

// readRest returns everything left in the body.
func (r *bodyReader) readRest() []byte {
	b := r.data[r.pos:]
	r.pos = len(r.data)
	return b
}

// encodeVarint writes a variable byte integer to w.
// MQTT v3.1.1 spec: Section 2.2.3
func encodeVarint(w io.Writer, v uint32) (int, error) {
	if v > maxVarint {
		return 0, ErrVarintTooLarge
	}

	var buf [4]byte
	n := 0
	for {
		b := byte(v % 128)
		v /= 128
		if v > 0 {
			b |= 0x80
		}
		buf[n] = b
		n++
		if v == 0 {
			break
		}
	}
	return w.Write(buf[:n])
}

// decodeVarint reads a variable byte integer from r.
func decodeVarint(r io.Reader) (uint32, int, error) {
	var value uint32
	var multiplier uint32 = 1
	var buf [1]byte
	n := 0

	for {
		if n >= 4 {
			return 0, n, ErrVarintMalformed
		}
		rn, err := io.ReadFull(r, buf[:])
		n += rn
		if err != nil {
			return 0, n, err
		}

		value += uint32(buf[0]&0x7F) * multiplier
		if buf[0]&0x80 == 0 {
			return value, n, nil
		}
		multiplier *= 128
	}
}
