package ports

import "time"

// MessageSource is a connected pull-style framed-message socket. One Recv
// returns exactly one message part.
type MessageSource interface {
	// Poll blocks until input is readable or the timeout elapses.
	// It returns false on timeout.
	Poll(timeout time.Duration) (bool, error)

	// Recv returns the next message part. It blocks until one arrives.
	Recv() ([]byte, error)

	// Close releases the socket.
	Close() error
}
