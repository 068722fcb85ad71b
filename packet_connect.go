package mqtt311

import (
	"errors"
	"io"
)

const (
	protocolName  = "MQTT"
	protocolLevel = 4 // MQTT v3.1.1
)

var ErrUnsupportedProtocol = errors.New("unsupported protocol version")

// ConnectPacket represents an MQTT CONNECT packet.
// MQTT v3.1.1 spec: Section 3.1
type ConnectPacket struct {
	ClientID     string
	CleanSession bool
	KeepAlive    uint16

	WillFlag    bool
	WillTopic   string
	WillPayload []byte
	WillQoS     byte
	WillRetain  bool

	Username    string
	Password    []byte
	HasUsername bool
	HasPassword bool
}

// Type returns the packet type.
func (p *ConnectPacket) Type() PacketType { return PacketCONNECT }

// Encode writes the packet to the writer.
func (p *ConnectPacket) Encode(w io.Writer) (int, error) {
	var body bodyWriter

	if err := body.writeString(protocolName); err != nil {
		return 0, err
	}
	body.writeByte(protocolLevel)

	var flags byte
	if p.CleanSession {
		flags |= 0x02
	}
	if p.WillFlag {
		if p.WillQoS > QoS2 {
			return 0, ErrInvalidQoS
		}
		flags |= 0x04
		flags |= p.WillQoS << 3
		if p.WillRetain {
			flags |= 0x20
		}
	}
	if p.HasPassword {
		flags |= 0x40
	}
	if p.HasUsername {
		flags |= 0x80
	}
	body.writeByte(flags)
	body.writeUint16(p.KeepAlive)

	if err := body.writeString(p.ClientID); err != nil {
		return 0, err
	}
	if p.WillFlag {
		if err := body.writeString(p.WillTopic); err != nil {
			return 0, err
		}
		if err := body.writeBytes(p.WillPayload); err != nil {
			return 0, err
		}
	}
	if p.HasUsername {
		if err := body.writeString(p.Username); err != nil {
			return 0, err
		}
	}
	if p.HasPassword {
		if err := body.writeBytes(p.Password); err != nil {
			return 0, err
		}
	}

	return encodeFramed(w, PacketCONNECT, 0, body.data)
}

// decode parses the packet body.
func (p *ConnectPacket) decode(header FixedHeader, body []byte) error {
	if header.PacketType != PacketCONNECT {
		return ErrInvalidPacketType
	}

	r := bodyReader{data: body}

	name, err := r.readString()
	if err != nil {
		return err
	}
	level, err := r.readByte()
	if err != nil {
		return err
	}
	if name != protocolName || level != protocolLevel {
		return ErrUnsupportedProtocol
	}

	flags, err := r.readByte()
	if err != nil {
		return err
	}
	p.CleanSession = flags&0x02 != 0
	p.WillFlag = flags&0x04 != 0
	p.WillQoS = (flags >> 3) & 0x03
	p.WillRetain = flags&0x20 != 0
	p.HasPassword = flags&0x40 != 0
	p.HasUsername = flags&0x80 != 0

	if p.KeepAlive, err = r.readUint16(); err != nil {
		return err
	}
	if p.ClientID, err = r.readString(); err != nil {
		return err
	}
	if p.WillFlag {
		if p.WillTopic, err = r.readString(); err != nil {
			return err
		}
		if p.WillPayload, err = r.readBytes(); err != nil {
			return err
		}
	}
	if p.HasUsername {
		if p.Username, err = r.readString(); err != nil {
			return err
		}
	}
	if p.HasPassword {
		if p.Password, err = r.readBytes(); err != nil {
			return err
		}
	}

	return nil
}
