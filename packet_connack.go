package mqtt311

import "io"

// ConnectReturnCode is the CONNACK return code.
// MQTT v3.1.1 spec: Section 3.2.2.3
type ConnectReturnCode byte

// CONNACK return codes.
const (
	ConnectAccepted            ConnectReturnCode = 0
	ConnectBadProtocolVersion  ConnectReturnCode = 1
	ConnectIdentifierRejected  ConnectReturnCode = 2
	ConnectServerUnavailable   ConnectReturnCode = 3
	ConnectBadUsernamePassword ConnectReturnCode = 4
	ConnectNotAuthorized       ConnectReturnCode = 5
)

// String returns the string representation of the return code.
func (c ConnectReturnCode) String() string {
	switch c {
	case ConnectAccepted:
		return "connection accepted"
	case ConnectBadProtocolVersion:
		return "unacceptable protocol version"
	case ConnectIdentifierRejected:
		return "identifier rejected"
	case ConnectServerUnavailable:
		return "server unavailable"
	case ConnectBadUsernamePassword:
		return "bad user name or password"
	case ConnectNotAuthorized:
		return "not authorized"
	default:
		return "unknown return code"
	}
}

// ConnackPacket represents an MQTT CONNACK packet.
// MQTT v3.1.1 spec: Section 3.2
type ConnackPacket struct {
	SessionPresent bool
	ReturnCode     ConnectReturnCode
}

// Type returns the packet type.
func (p *ConnackPacket) Type() PacketType { return PacketCONNACK }

// Encode writes the packet to the writer.
func (p *ConnackPacket) Encode(w io.Writer) (int, error) {
	var ackFlags byte
	if p.SessionPresent {
		ackFlags = 0x01
	}
	return encodeFramed(w, PacketCONNACK, 0, []byte{ackFlags, byte(p.ReturnCode)})
}

// decode parses the packet body.
func (p *ConnackPacket) decode(header FixedHeader, body []byte) error {
	if header.PacketType != PacketCONNACK {
		return ErrInvalidPacketType
	}
	if len(body) < 2 {
		return ErrTruncatedPacket
	}
	p.SessionPresent = body[0]&0x01 != 0
	p.ReturnCode = ConnectReturnCode(body[1])
	return nil
}
