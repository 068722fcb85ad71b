package mqtt311

import "io"

// encodeIDOnly frames a packet whose body is a lone packet identifier.
// PUBACK, PUBREC, PUBREL, PUBCOMP and UNSUBACK share this shape.
func encodeIDOnly(w io.Writer, packetType PacketType, flags byte, packetID uint16) (int, error) {
	return encodeFramed(w, packetType, flags, []byte{byte(packetID >> 8), byte(packetID)})
}

// decodeIDOnly parses a lone packet identifier body.
func decodeIDOnly(header FixedHeader, body []byte, want PacketType) (uint16, error) {
	if header.PacketType != want {
		return 0, ErrInvalidPacketType
	}
	if len(body) < 2 {
		return 0, ErrTruncatedPacket
	}
	return uint16(body[0])<<8 | uint16(body[1]), nil
}

// PubackPacket represents an MQTT PUBACK packet.
// MQTT v3.1.1 spec: Section 3.4
type PubackPacket struct {
	PacketID uint16
}

// Type returns the packet type.
func (p *PubackPacket) Type() PacketType { return PacketPUBACK }

// Encode writes the packet to the writer.
func (p *PubackPacket) Encode(w io.Writer) (int, error) {
	return encodeIDOnly(w, PacketPUBACK, 0, p.PacketID)
}

func (p *PubackPacket) decode(header FixedHeader, body []byte) error {
	id, err := decodeIDOnly(header, body, PacketPUBACK)
	p.PacketID = id
	return err
}

// PubrecPacket represents an MQTT PUBREC packet.
// MQTT v3.1.1 spec: Section 3.5
type PubrecPacket struct {
	PacketID uint16
}

// Type returns the packet type.
func (p *PubrecPacket) Type() PacketType { return PacketPUBREC }

// Encode writes the packet to the writer.
func (p *PubrecPacket) Encode(w io.Writer) (int, error) {
	return encodeIDOnly(w, PacketPUBREC, 0, p.PacketID)
}

func (p *PubrecPacket) decode(header FixedHeader, body []byte) error {
	id, err := decodeIDOnly(header, body, PacketPUBREC)
	p.PacketID = id
	return err
}

// PubrelPacket represents an MQTT PUBREL packet.
// MQTT v3.1.1 spec: Section 3.6
type PubrelPacket struct {
	PacketID uint16
}

// Type returns the packet type.
func (p *PubrelPacket) Type() PacketType { return PacketPUBREL }

// Encode writes the packet to the writer. The fixed header flags are
// 0x02 as required by the specification.
func (p *PubrelPacket) Encode(w io.Writer) (int, error) {
	return encodeIDOnly(w, PacketPUBREL, 0x02, p.PacketID)
}

func (p *PubrelPacket) decode(header FixedHeader, body []byte) error {
	id, err := decodeIDOnly(header, body, PacketPUBREL)
	p.PacketID = id
	return err
}

// PubcompPacket represents an MQTT PUBCOMP packet.
// MQTT v3.1.1 spec: Section 3.7
type PubcompPacket struct {
	PacketID uint16
}

// Type returns the packet type.
func (p *PubcompPacket) Type() PacketType { return PacketPUBCOMP }

// Encode writes the packet to the writer.
func (p *PubcompPacket) Encode(w io.Writer) (int, error) {
	return encodeIDOnly(w, PacketPUBCOMP, 0, p.PacketID)
}

func (p *PubcompPacket) decode(header FixedHeader, body []byte) error {
	id, err := decodeIDOnly(header, body, PacketPUBCOMP)
	p.PacketID = id
	return err
}
