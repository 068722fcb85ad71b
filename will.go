package mqtt311

// WillMessage is the last-will message registered with the broker at
// connect time. The broker publishes it when the connection dies
// without a clean DISCONNECT.
type WillMessage struct {
	// Topic to publish the will message to.
	Topic string

	// Payload of the will message.
	Payload []byte

	// QoS of the will message.
	QoS byte

	// Retain marks the will message as retained.
	Retain bool
}

// Validate checks the will message.
func (w *WillMessage) Validate() error {
	if err := ValidateTopicName(w.Topic); err != nil {
		return err
	}
	if w.QoS > QoS2 {
		return ErrInvalidQoS
	}
	return nil
}
