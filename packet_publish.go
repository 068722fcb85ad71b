package mqtt311

import "io"

// PublishPacket represents an MQTT PUBLISH packet.
// MQTT v3.1.1 spec: Section 3.3
type PublishPacket struct {
	Topic    string
	Payload  []byte
	PacketID uint16 // only present for QoS 1 and 2
	QoS      byte
	Retain   bool
	DUP      bool
}

// Type returns the packet type.
func (p *PublishPacket) Type() PacketType { return PacketPUBLISH }

// FromMessage fills the packet from an application message.
func (p *PublishPacket) FromMessage(msg *Message) {
	p.Topic = msg.Topic
	p.Payload = msg.Payload
	p.QoS = msg.QoS
	p.Retain = msg.Retain
	p.DUP = msg.Duplicate
}

// ToMessage converts the packet to an application message.
func (p *PublishPacket) ToMessage() *Message {
	return &Message{
		Topic:     p.Topic,
		Payload:   p.Payload,
		QoS:       p.QoS,
		Retain:    p.Retain,
		Duplicate: p.DUP,
	}
}

// Encode writes the packet to the writer.
func (p *PublishPacket) Encode(w io.Writer) (int, error) {
	if p.QoS > QoS2 {
		return 0, ErrInvalidQoS
	}

	var body bodyWriter
	if err := body.writeString(p.Topic); err != nil {
		return 0, err
	}
	if p.QoS > QoS0 {
		body.writeUint16(p.PacketID)
	}
	body.data = append(body.data, p.Payload...)

	var flags byte
	if p.DUP {
		flags |= 0x08
	}
	flags |= p.QoS << 1
	if p.Retain {
		flags |= 0x01
	}

	return encodeFramed(w, PacketPUBLISH, flags, body.data)
}

// decode parses the packet body.
func (p *PublishPacket) decode(header FixedHeader, body []byte) error {
	if header.PacketType != PacketPUBLISH {
		return ErrInvalidPacketType
	}

	p.DUP = header.Flags&0x08 != 0
	p.QoS = (header.Flags >> 1) & 0x03
	p.Retain = header.Flags&0x01 != 0
	if p.QoS > QoS2 {
		return ErrInvalidQoS
	}

	r := bodyReader{data: body}

	var err error
	if p.Topic, err = r.readString(); err != nil {
		return err
	}
	if p.QoS > QoS0 {
		if p.PacketID, err = r.readUint16(); err != nil {
			return err
		}
	}
	p.Payload = r.readRest()

	return nil
}
