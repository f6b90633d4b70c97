package sserelay

import (
	"sort"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
)

// ConnectionStatus is a snapshot of a single client connection.
type ConnectionStatus struct {
	FD        int    `json:"fd"`
	Remote    string `json:"remote_addr"`
	Created   int64  `json:"created_at"`
	Closed    int64  `json:"closed_at,omitempty"`
	Reason    string `json:"close_reason,omitempty"`
	MsgsSent  uint64 `json:"msgs_sent"`
	BytesSent uint64 `json:"bytes_sent"`
}

// tracker mirrors connection state for readers outside the event loop. Open
// connections are kept until closed, closed ones expire after the history
// TTL.
type tracker struct {
	open   *cache.Cache
	closed *cache.Cache
	ttl    time.Duration
}

func newTracker(ttl time.Duration) *tracker {
	t := &tracker{
		open: cache.New(cache.NoExpiration, 0),
		ttl:  ttl,
	}
	if ttl > 0 {
		t.closed = cache.New(ttl, ttl)
	}
	return t
}

func (t *tracker) update(c *conn) {
	t.open.Set(strconv.Itoa(c.fd), c.status(), cache.NoExpiration)
}

func (t *tracker) remove(c *conn, reason string) {
	t.open.Delete(strconv.Itoa(c.fd))
	if t.closed == nil {
		return
	}
	st := c.status()
	st.Closed = time.Now().Unix()
	st.Reason = reason
	// descriptors are reused, the creation time keeps keys unique
	key := strconv.Itoa(c.fd) + "/" + strconv.FormatInt(c.created.UnixNano(), 10)
	t.closed.Set(key, st, cache.DefaultExpiration)
}

// openConnections returns open connections sorted by age.
func (t *tracker) openConnections() []ConnectionStatus {
	return snapshot(t.open)
}

// closedConnections returns connections closed within the history TTL.
func (t *tracker) closedConnections() []ConnectionStatus {
	if t.closed == nil {
		return []ConnectionStatus{}
	}
	return snapshot(t.closed)
}

func (t *tracker) flush() {
	t.open.Flush()
	if t.closed != nil {
		t.closed.Flush()
	}
}

func snapshot(c *cache.Cache) []ConnectionStatus {
	items := c.Items()
	list := make([]ConnectionStatus, 0, len(items))
	for _, item := range items {
		list = append(list, item.Object.(ConnectionStatus))
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Created != list[j].Created {
			return list[i].Created < list[j].Created
		}
		return list[i].FD < list[j].FD
	})
	return list
}
