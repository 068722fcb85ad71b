package mqtt311

import (
	"errors"
	"io"
)

// QoS levels for published messages.
const (
	QoS0 byte = 0
	QoS1 byte = 1
	QoS2 byte = 2
)

// PacketType represents an MQTT control packet type.
type PacketType byte

// MQTT control packet types as defined in the specification.
const (
	PacketCONNECT     PacketType = 1
	PacketCONNACK     PacketType = 2
	PacketPUBLISH     PacketType = 3
	PacketPUBACK      PacketType = 4
	PacketPUBREC      PacketType = 5
	PacketPUBREL      PacketType = 6
	PacketPUBCOMP     PacketType = 7
	PacketSUBSCRIBE   PacketType = 8
	PacketSUBACK      PacketType = 9
	PacketUNSUBSCRIBE PacketType = 10
	PacketUNSUBACK    PacketType = 11
	PacketPINGREQ     PacketType = 12
	PacketPINGRESP    PacketType = 13
	PacketDISCONNECT  PacketType = 14
)

// String returns the string representation of the packet type.
func (p PacketType) String() string {
	switch p {
	case PacketCONNECT:
		return "CONNECT"
	case PacketCONNACK:
		return "CONNACK"
	case PacketPUBLISH:
		return "PUBLISH"
	case PacketPUBACK:
		return "PUBACK"
	case PacketPUBREC:
		return "PUBREC"
	case PacketPUBREL:
		return "PUBREL"
	case PacketPUBCOMP:
		return "PUBCOMP"
	case PacketSUBSCRIBE:
		return "SUBSCRIBE"
	case PacketSUBACK:
		return "SUBACK"
	case PacketUNSUBSCRIBE:
		return "UNSUBSCRIBE"
	case PacketUNSUBACK:
		return "UNSUBACK"
	case PacketPINGREQ:
		return "PINGREQ"
	case PacketPINGRESP:
		return "PINGRESP"
	case PacketDISCONNECT:
		return "DISCONNECT"
	default:
		return "UNKNOWN"
	}
}

// Valid returns true if the packet type is valid for MQTT v3.1.1.
func (p PacketType) Valid() bool {
	return p >= PacketCONNECT && p <= PacketDISCONNECT
}

// Codec errors.
var (
	ErrInvalidPacketType = errors.New("invalid packet type")
	ErrPacketTooLarge    = errors.New("packet exceeds maximum size")
	ErrInvalidQoS        = errors.New("invalid QoS level")
)

// FixedHeader represents the fixed header of an MQTT control packet.
// MQTT v3.1.1 spec: Section 2.2
type FixedHeader struct {
	PacketType      PacketType
	Flags           byte
	RemainingLength uint32
}

// Encode writes the fixed header to the writer.
func (h *FixedHeader) Encode(w io.Writer) (int, error) {
	if !h.PacketType.Valid() {
		return 0, ErrInvalidPacketType
	}

	firstByte := byte(h.PacketType)<<4 | (h.Flags & 0x0F)
	n, err := w.Write([]byte{firstByte})
	if err != nil {
		return n, err
	}

	n2, err := encodeVarint(w, h.RemainingLength)
	return n + n2, err
}

// Decode reads the fixed header from the reader.
func (h *FixedHeader) Decode(r io.Reader) (int, error) {
	var buf [1]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil {
		return n, err
	}

	h.PacketType = PacketType(buf[0] >> 4)
	h.Flags = buf[0] & 0x0F

	if !h.PacketType.Valid() {
		return n, ErrInvalidPacketType
	}

	length, n2, err := decodeVarint(r)
	n += n2
	if err != nil {
		return n, err
	}
	h.RemainingLength = length

	return n, nil
}

// Packet is the interface all MQTT control packets implement.
type Packet interface {
	// Type returns the packet type.
	Type() PacketType

	// Encode writes the complete packet, fixed header included.
	Encode(w io.Writer) (int, error)

	// decode parses the packet body. The fixed header has already been
	// consumed.
	decode(header FixedHeader, body []byte) error
}

// Message represents an MQTT application message.
type Message struct {
	// Topic is the topic name the message was published to.
	Topic string

	// Payload is the application message payload.
	Payload []byte

	// QoS is the Quality of Service level (0, 1, or 2).
	QoS byte

	// Retain indicates a retained message.
	Retain bool

	// Duplicate indicates a possible redelivery of an earlier attempt.
	Duplicate bool
}

// encodeFramed frames a packet body with its fixed header and writes
// the result to w.
func encodeFramed(w io.Writer, packetType PacketType, flags byte, body []byte) (int, error) {
	header := FixedHeader{
		PacketType:      packetType,
		Flags:           flags,
		RemainingLength: uint32(len(body)),
	}

	n, err := header.Encode(w)
	if err != nil {
		return n, err
	}

	n2, err := w.Write(body)
	return n + n2, err
}

// ReadPacket reads one complete MQTT packet from the reader.
// If maxSize is greater than 0, larger packets return ErrPacketTooLarge.
func ReadPacket(r io.Reader, maxSize uint32) (Packet, error) {
	var header FixedHeader
	if _, err := header.Decode(r); err != nil {
		return nil, err
	}

	if maxSize > 0 && header.RemainingLength > maxSize {
		return nil, ErrPacketTooLarge
	}

	body := make([]byte, header.RemainingLength)
	if header.RemainingLength > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, err
		}
	}

	var packet Packet
	switch header.PacketType {
	case PacketCONNECT:
		packet = &ConnectPacket{}
	case PacketCONNACK:
		packet = &ConnackPacket{}
	case PacketPUBLISH:
		packet = &PublishPacket{}
	case PacketPUBACK:
		packet = &PubackPacket{}
	case PacketPUBREC:
		packet = &PubrecPacket{}
	case PacketPUBREL:
		packet = &PubrelPacket{}
	case PacketPUBCOMP:
		packet = &PubcompPacket{}
	case PacketSUBSCRIBE:
		packet = &SubscribePacket{}
	case PacketSUBACK:
		packet = &SubackPacket{}
	case PacketUNSUBSCRIBE:
		packet = &UnsubscribePacket{}
	case PacketUNSUBACK:
		packet = &UnsubackPacket{}
	case PacketPINGREQ:
		packet = &PingreqPacket{}
	case PacketPINGRESP:
		packet = &PingrespPacket{}
	case PacketDISCONNECT:
		packet = &DisconnectPacket{}
	default:
		return nil, ErrInvalidPacketType
	}

	if err := packet.decode(header, body); err != nil {
		return nil, err
	}
	return packet, nil
}
