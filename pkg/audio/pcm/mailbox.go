package pcm

import "sync"

// Mailbox is an unbounded, order-preserving [Sink]. Messages posted from
// the capture goroutine are queued under a mutex and delivered on
// [Mailbox.Messages] by an internal pump at whatever pace the consumer reads
// them. Post never waits on the pump or the consumer.
//
// Post and Close are safe for concurrent use.
type Mailbox struct {
	mu     sync.Mutex
	queue  []Message
	closed bool

	// wake holds at most one pending signal for the pump.
	wake chan struct{}
	out  chan Message
}

// Compile-time check.
var _ Sink = (*Mailbox)(nil)

// NewMailbox creates a Mailbox and starts its pump goroutine. The pump exits
// after [Mailbox.Close] once every queued message has been delivered.
func NewMailbox() *Mailbox {
	m := &Mailbox{
		wake: make(chan struct{}, 1),
		out:  make(chan Message),
	}
	go m.pump()
	return m
}

// Post queues msg for delivery. Messages posted after Close are discarded.
func (m *Mailbox) Post(msg Message) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, msg)
	m.mu.Unlock()
	m.signal()
}

// Messages returns the delivery channel. It is closed after Close once the
// queue has drained.
func (m *Mailbox) Messages() <-chan Message { return m.out }

// Close stops intake. Already queued messages are still delivered. Calling
// Close more than once is safe.
func (m *Mailbox) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.signal()
}

func (m *Mailbox) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// pump hands queued messages to out in batches. A batch is taken under the
// lock and delivered without it, so producers only contend for the append.
func (m *Mailbox) pump() {
	defer close(m.out)

	for {
		m.mu.Lock()
		batch, closed := m.queue, m.closed
		m.queue = nil
		m.mu.Unlock()

		for i := range batch {
			m.out <- batch[i]
			batch[i] = Message{}
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-m.wake
	}
}
