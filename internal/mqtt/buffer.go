package mqtt

import "github.com/rs/zerolog"

// pending is a serialized message held back while the broker is unreachable.
type pending struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// backlog is a fixed-capacity FIFO of pending messages. A retained message
// replaces any queued retained message for the same topic, since the broker
// would only keep the newest one anyway.
//
// Not safe for concurrent use; the publisher holds its mutex around it.
type backlog struct {
	log      zerolog.Logger
	msgs     []pending
	head     int // next write position
	count    int
	overflow bool // set once per drain cycle when the oldest message is lost
}

func newBacklog(capacity int, log zerolog.Logger) *backlog {
	if capacity < 1 {
		capacity = 1
	}
	return &backlog{
		log:  log,
		msgs: make([]pending, capacity),
	}
}

func (b *backlog) index(i int) int {
	return (b.head - b.count + i + 2*len(b.msgs)) % len(b.msgs)
}

func (b *backlog) push(msg pending) {
	if msg.retained {
		for i := 0; i < b.count; i++ {
			at := b.index(i)
			if b.msgs[at].retained && b.msgs[at].topic == msg.topic {
				b.msgs[at] = msg
				return
			}
		}
	}

	b.msgs[b.head] = msg
	b.head = (b.head + 1) % len(b.msgs)
	if b.count < len(b.msgs) {
		b.count++
		return
	}
	// Full: the write above overwrote the oldest entry.
	if !b.overflow {
		b.log.Warn().Int("capacity", len(b.msgs)).Msg("backlog full, dropping oldest messages")
		b.overflow = true
	}
}

// drain returns the queued messages oldest first and empties the backlog.
func (b *backlog) drain() []pending {
	if b.count == 0 {
		return nil
	}
	out := make([]pending, b.count)
	for i := range out {
		out[i] = b.msgs[b.index(i)]
	}
	clear(b.msgs)
	b.head = 0
	b.count = 0
	b.overflow = false
	return out
}

func (b *backlog) len() int {
	return b.count
}
