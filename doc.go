// Package sserelay is a one-way Server-Sent Events relay.
//
// Values popped from an external blocking queue are written, unmodified, to
// every connected client of a long-lived event-stream HTTP response. The relay
// does not parse client requests and does not frame messages: producers push
// payloads that are already valid event-stream chunks (terminated by a blank
// line) and the relay forwards the bytes as they are.
//
// A relay runs two goroutines. The queue worker is the only code allowed to
// block on the queue, it copies every popped value into a pipe. The event loop
// owns everything else: the listening socket, the pipe read end, the
// connection registry and the epoll instance that watches all of them.
//
// Typical usage of this package is:
//	* Create a Queue, for example with NewRedisQueue.
//	* Create a relay with New, passing Config and the queue.
//	* Call Run with a context, cancel the context to stop the relay.
//	* Optionally serve Relay.AdminHandler() for status and metrics.
//
// Delivery policy is "latest wins" by default: at most one broadcast is
// pending at any time and a newer broadcast replaces an older one that was not
// yet picked up by a slow client. See Policy for the alternative.
//
// The relay is implemented on top of epoll and is only available on Linux.
package sserelay
