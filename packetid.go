package mqtt311

import "sync"

// packetIDManager allocates packet identifiers (1-65535). An identifier
// is never handed out again while its operation is unresolved.
// MQTT v3.1.1 spec: Section 2.3.1
type packetIDManager struct {
	mu   sync.Mutex
	used map[uint16]struct{}
	next uint16
}

func newPacketIDManager() *packetIDManager {
	return &packetIDManager{
		used: make(map[uint16]struct{}),
		next: 1,
	}
}

// Allocate returns the next available packet ID.
func (m *packetIDManager) Allocate() (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.used) >= 65535 {
		return 0, ErrPacketIDExhausted
	}

	start := m.next
	for {
		if _, ok := m.used[m.next]; !ok {
			id := m.next
			m.used[id] = struct{}{}
			m.advance()
			return id, nil
		}
		m.advance()
		if m.next == start {
			return 0, ErrPacketIDExhausted
		}
	}
}

func (m *packetIDManager) advance() {
	m.next++
	if m.next == 0 {
		m.next = 1
	}
}

// Release releases a packet ID for reuse. Releasing an unallocated ID
// is a no-op.
func (m *packetIDManager) Release(id uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.used, id)
}

// InUse returns the count of packet IDs currently allocated.
func (m *packetIDManager) InUse() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.used)
}
