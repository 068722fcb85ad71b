package mqtt311

import "io"

// PingreqPacket represents an MQTT PINGREQ packet.
// MQTT v3.1.1 spec: Section 3.12
type PingreqPacket struct{}

// Type returns the packet type.
func (p *PingreqPacket) Type() PacketType { return PacketPINGREQ }

// Encode writes the packet to the writer.
func (p *PingreqPacket) Encode(w io.Writer) (int, error) {
	return encodeFramed(w, PacketPINGREQ, 0, nil)
}

func (p *PingreqPacket) decode(header FixedHeader, _ []byte) error {
	if header.PacketType != PacketPINGREQ {
		return ErrInvalidPacketType
	}
	return nil
}

// PingrespPacket represents an MQTT PINGRESP packet.
// MQTT v3.1.1 spec: Section 3.13
type PingrespPacket struct{}

// Type returns the packet type.
func (p *PingrespPacket) Type() PacketType { return PacketPINGRESP }

// Encode writes the packet to the writer.
func (p *PingrespPacket) Encode(w io.Writer) (int, error) {
	return encodeFramed(w, PacketPINGRESP, 0, nil)
}

func (p *PingrespPacket) decode(header FixedHeader, _ []byte) error {
	if header.PacketType != PacketPINGRESP {
		return ErrInvalidPacketType
	}
	return nil
}

// DisconnectPacket represents an MQTT DISCONNECT packet.
// MQTT v3.1.1 spec: Section 3.14
type DisconnectPacket struct{}

// Type returns the packet type.
func (p *DisconnectPacket) Type() PacketType { return PacketDISCONNECT }

// Encode writes the packet to the writer.
func (p *DisconnectPacket) Encode(w io.Writer) (int, error) {
	return encodeFramed(w, PacketDISCONNECT, 0, nil)
}

func (p *DisconnectPacket) decode(header FixedHeader, _ []byte) error {
	if header.PacketType != PacketDISCONNECT {
		return ErrInvalidPacketType
	}
	return nil
}
