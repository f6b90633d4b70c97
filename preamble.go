package sserelay

import (
	"fmt"
	"time"
)

// responseHeader is sent once to every accepted connection. Client requests
// are never parsed, every connection gets the same response.
const responseHeader = "HTTP/1.1 200 OK\r\n" +
	"Cache-Control: no-cache\r\n" +
	"Content-Type: text/event-stream\r\n" +
	"Connection: keep-alive\r\n" +
	"Access-Control-Allow-Origin: *\r\n" +
	"\r\n"

// preamble returns the bytes written to a client right after accept: the
// response header followed by an optional reconnect hint.
func preamble(reconnect time.Duration) []byte {
	b := []byte(responseHeader)
	if reconnect > 0 {
		b = append(b, fmt.Sprintf("retry: %d\n\n", reconnect/time.Millisecond)...)
	}
	return b
}
