package sserelay

import "github.com/eapache/queue"

// broadcast is the pending broadcast slot. A new arrival replaces the
// previous payload and bumps seq, seq zero means nothing was received yet.
type broadcast struct {
	data []byte
	seq  uint64
}

func (b *broadcast) set(data []byte) {
	b.data = data
	b.seq++
}

// delivery decides which payloads a connection writes.
type delivery interface {
	// offer is called for every registered connection once a broadcast
	// arrives. Returning false drops the connection.
	offer(c *conn, b *broadcast) bool
	// next returns the next payload c should write, nil when c is up to
	// date.
	next(c *conn, b *broadcast) []byte
}

func newDelivery(cfg Config) delivery {
	if cfg.Policy == PolicyQueue {
		return queueDelivery{max: cfg.MaxBacklog}
	}
	return latestDelivery{}
}

// latestDelivery shares the single pending slot between all connections.
// Broadcasts that were replaced before a connection took them are never
// written to it.
type latestDelivery struct{}

func (latestDelivery) offer(*conn, *broadcast) bool {
	return true
}

func (latestDelivery) next(c *conn, b *broadcast) []byte {
	if c.seen >= b.seq {
		return nil
	}
	c.seen = b.seq
	return b.data
}

// queueDelivery keeps every broadcast in a per-connection backlog.
type queueDelivery struct {
	max int
}

func (d queueDelivery) offer(c *conn, b *broadcast) bool {
	if c.backlog == nil {
		c.backlog = queue.New()
	}
	if c.backlog.Length() >= d.max {
		// Client is too slow, close it and let it reconnect
		return false
	}
	c.backlog.Add(b.data)
	return true
}

func (queueDelivery) next(c *conn, _ *broadcast) []byte {
	if c.backlog == nil || c.backlog.Length() == 0 {
		return nil
	}
	return c.backlog.Remove().([]byte)
}
