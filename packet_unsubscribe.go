package mqtt311

import "io"

// UnsubscribePacket represents an MQTT UNSUBSCRIBE packet.
// MQTT v3.1.1 spec: Section 3.10
type UnsubscribePacket struct {
	PacketID     uint16
	TopicFilters []string
}

// Type returns the packet type.
func (p *UnsubscribePacket) Type() PacketType { return PacketUNSUBSCRIBE }

// Encode writes the packet to the writer. The fixed header flags are
// 0x02 as required by the specification.
func (p *UnsubscribePacket) Encode(w io.Writer) (int, error) {
	var body bodyWriter
	body.writeUint16(p.PacketID)

	for _, filter := range p.TopicFilters {
		if err := body.writeString(filter); err != nil {
			return 0, err
		}
	}

	return encodeFramed(w, PacketUNSUBSCRIBE, 0x02, body.data)
}

// decode parses the packet body.
func (p *UnsubscribePacket) decode(header FixedHeader, body []byte) error {
	if header.PacketType != PacketUNSUBSCRIBE {
		return ErrInvalidPacketType
	}

	r := bodyReader{data: body}

	var err error
	if p.PacketID, err = r.readUint16(); err != nil {
		return err
	}

	for r.remaining() > 0 {
		filter, err := r.readString()
		if err != nil {
			return err
		}
		p.TopicFilters = append(p.TopicFilters, filter)
	}

	return nil
}

// UnsubackPacket represents an MQTT UNSUBACK packet.
// MQTT v3.1.1 spec: Section 3.11
type UnsubackPacket struct {
	PacketID uint16
}

// Type returns the packet type.
func (p *UnsubackPacket) Type() PacketType { return PacketUNSUBACK }

// Encode writes the packet to the writer.
func (p *UnsubackPacket) Encode(w io.Writer) (int, error) {
	return encodeIDOnly(w, PacketUNSUBACK, 0, p.PacketID)
}

func (p *UnsubackPacket) decode(header FixedHeader, body []byte) error {
	id, err := decodeIDOnly(header, body, PacketUNSUBACK)
	p.PacketID = id
	return err
}
