package mqtt

import "log"

// queuedMsg is a serialized message waiting for the broker to come
// back.
type queuedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox is a fixed-capacity FIFO holding messages while the broker is
// unreachable. When full, the oldest message is dropped: a stale power
// transition is worth less than a recent one.
// Not safe for concurrent use; the publisher synchronizes.
type outbox struct {
	buf      []queuedMsg
	capacity int
	head     int // next write position
	count    int
	dropped  int // messages lost to overflow since the last drain
}

func newOutbox(capacity int) *outbox {
	return &outbox{
		buf:      make([]queuedMsg, capacity),
		capacity: capacity,
	}
}

func (o *outbox) push(msg queuedMsg) {
	if o.count == o.capacity {
		if o.dropped == 0 {
			log.Printf("mqtt: outbox full (%d messages), dropping oldest", o.capacity)
		}
		o.dropped++
		// Overwrite oldest: head is already pointing at it.
		o.buf[o.head] = msg
		o.head = (o.head + 1) % o.capacity
		return
	}
	o.buf[o.head] = msg
	o.head = (o.head + 1) % o.capacity
	o.count++
}

// drain returns the queued messages oldest-first and resets the outbox.
func (o *outbox) drain() []queuedMsg {
	if o.count == 0 {
		return nil
	}

	msgs := make([]queuedMsg, o.count)
	start := (o.head - o.count + o.capacity) % o.capacity
	for i := 0; i < o.count; i++ {
		msgs[i] = o.buf[(start+i)%o.capacity]
	}

	if o.dropped > 0 {
		log.Printf("mqtt: %d messages were dropped while disconnected", o.dropped)
	}
	o.count = 0
	o.head = 0
	o.dropped = 0
	return msgs
}

func (o *outbox) len() int {
	return o.count
}
