package mqtt311

import "io"

// subackFailure is the SUBACK return code for a rejected subscription.
// MQTT v3.1.1 spec: Section 3.9.3
const subackFailure byte = 0x80

// TopicSubscription pairs a topic filter with a requested QoS level.
type TopicSubscription struct {
	TopicFilter string
	QoS         byte
}

// SubscribePacket represents an MQTT SUBSCRIBE packet.
// MQTT v3.1.1 spec: Section 3.8
type SubscribePacket struct {
	PacketID      uint16
	Subscriptions []TopicSubscription
}

// Type returns the packet type.
func (p *SubscribePacket) Type() PacketType { return PacketSUBSCRIBE }

// Encode writes the packet to the writer. The fixed header flags are
// 0x02 as required by the specification.
func (p *SubscribePacket) Encode(w io.Writer) (int, error) {
	var body bodyWriter
	body.writeUint16(p.PacketID)

	for _, sub := range p.Subscriptions {
		if sub.QoS > QoS2 {
			return 0, ErrInvalidQoS
		}
		if err := body.writeString(sub.TopicFilter); err != nil {
			return 0, err
		}
		body.writeByte(sub.QoS)
	}

	return encodeFramed(w, PacketSUBSCRIBE, 0x02, body.data)
}

// decode parses the packet body.
func (p *SubscribePacket) decode(header FixedHeader, body []byte) error {
	if header.PacketType != PacketSUBSCRIBE {
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
		qos, err := r.readByte()
		if err != nil {
			return err
		}
		if qos > QoS2 {
			return ErrInvalidQoS
		}
		p.Subscriptions = append(p.Subscriptions, TopicSubscription{
			TopicFilter: filter,
			QoS:         qos,
		})
	}

	return nil
}

// SubackPacket represents an MQTT SUBACK packet.
// MQTT v3.1.1 spec: Section 3.9
type SubackPacket struct {
	PacketID uint16

	// ReturnCodes holds one entry per requested subscription: the
	// granted QoS level, or subackFailure on rejection.
	ReturnCodes []byte
}

// Type returns the packet type.
func (p *SubackPacket) Type() PacketType { return PacketSUBACK }

// Encode writes the packet to the writer.
func (p *SubackPacket) Encode(w io.Writer) (int, error) {
	var body bodyWriter
	body.writeUint16(p.PacketID)
	body.data = append(body.data, p.ReturnCodes...)
	return encodeFramed(w, PacketSUBACK, 0, body.data)
}

// decode parses the packet body.
func (p *SubackPacket) decode(header FixedHeader, body []byte) error {
	if header.PacketType != PacketSUBACK {
		return ErrInvalidPacketType
	}

	r := bodyReader{data: body}

	var err error
	if p.PacketID, err = r.readUint16(); err != nil {
		return err
	}
	p.ReturnCodes = r.readRest()

	return nil
}
