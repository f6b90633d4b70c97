package sserelay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerOpenAndClosed(t *testing.T) {
	tr := newTracker(time.Minute)
	now := time.Now()

	a := &conn{fd: 7, remote: "10.0.0.1:1000", created: now.Add(-time.Second)}
	b := &conn{fd: 5, remote: "10.0.0.2:1000", created: now}
	tr.update(b)
	tr.update(a)

	open := tr.openConnections()
	require.Len(t, open, 2)
	// Oldest first
	assert.Equal(t, 7, open[0].FD)
	assert.Equal(t, 5, open[1].FD)

	a.msgsSent = 2
	a.bytesSent = 20
	tr.update(a)
	tr.remove(a, "eof")

	open = tr.openConnections()
	require.Len(t, open, 1)
	assert.Equal(t, 5, open[0].FD)

	closed := tr.closedConnections()
	require.Len(t, closed, 1)
	assert.Equal(t, 7, closed[0].FD)
	assert.Equal(t, "eof", closed[0].Reason)
	assert.Equal(t, uint64(2), closed[0].MsgsSent)
	assert.Equal(t, uint64(20), closed[0].BytesSent)
	assert.NotZero(t, closed[0].Closed)
}

func TestTrackerReusedDescriptor(t *testing.T) {
	tr := newTracker(time.Minute)
	now := time.Now()

	first := &conn{fd: 9, created: now.Add(-time.Second)}
	second := &conn{fd: 9, created: now}
	tr.update(first)
	tr.remove(first, "eof")
	tr.update(second)
	tr.remove(second, "hangup")

	assert.Len(t, tr.closedConnections(), 2)
	assert.Empty(t, tr.openConnections())
}

func TestTrackerHistoryExpires(t *testing.T) {
	tr := newTracker(20 * time.Millisecond)
	c := &conn{fd: 3, created: time.Now()}
	tr.update(c)
	tr.remove(c, "eof")
	require.Len(t, tr.closedConnections(), 1)

	assert.Eventually(t, func() bool {
		return len(tr.closedConnections()) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestTrackerHistoryDisabled(t *testing.T) {
	tr := newTracker(0)
	c := &conn{fd: 3, created: time.Now()}
	tr.update(c)
	tr.remove(c, "eof")

	assert.NotNil(t, tr.closedConnections())
	assert.Empty(t, tr.closedConnections())
	assert.Empty(t, tr.openConnections())
}

func TestTrackerFlush(t *testing.T) {
	tr := newTracker(time.Minute)
	a := &conn{fd: 1, created: time.Now()}
	b := &conn{fd: 2, created: time.Now()}
	tr.update(a)
	tr.update(b)
	tr.remove(a, "eof")

	tr.flush()
	assert.Empty(t, tr.openConnections())
	assert.Empty(t, tr.closedConnections())
}
