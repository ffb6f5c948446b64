// Package zmq adapts a ZeroMQ PULL socket to ports.MessageSource.
package zmq

import (
	"time"

	zmq4 "github.com/pebbe/zmq4"
)

// Options configure the connection to the DCU's push socket.
type Options struct {
	// Endpoint is the DCU push socket, e.g. tcp://grape.ls-cat.org:9999.
	Endpoint string
	// IOThreads is the ZeroMQ context I/O thread count.
	IOThreads int
	// MaxMsgSize bounds a single message part in bytes; parts beyond it
	// are dropped by the transport. <= 0 means unlimited.
	MaxMsgSize int64
}

// Source is a connected PULL socket. It is not safe for concurrent use;
// the receive loop owns it.
type Source struct {
	ctx    *zmq4.Context
	sock   *zmq4.Socket
	poller *zmq4.Poller
}

// Dial connects a PULL socket to the endpoint.
func Dial(opts Options) (*Source, error) {
	ctx, err := zmq4.NewContext()
	if err != nil {
		return nil, err
	}
	if opts.IOThreads > 0 {
		if err := ctx.SetIoThreads(opts.IOThreads); err != nil {
			ctx.Term()
			return nil, err
		}
	}
	sock, err := ctx.NewSocket(zmq4.PULL)
	if err != nil {
		ctx.Term()
		return nil, err
	}
	if opts.MaxMsgSize > 0 {
		if err := sock.SetMaxmsgsize(opts.MaxMsgSize); err != nil {
			sock.Close()
			ctx.Term()
			return nil, err
		}
	}
	if err := sock.Connect(opts.Endpoint); err != nil {
		sock.Close()
		ctx.Term()
		return nil, err
	}

	poller := zmq4.NewPoller()
	poller.Add(sock, zmq4.POLLIN)
	return &Source{ctx: ctx, sock: sock, poller: poller}, nil
}

// Poll blocks until the socket is readable or the timeout elapses.
func (s *Source) Poll(timeout time.Duration) (bool, error) {
	polled, err := s.poller.Poll(timeout)
	if err != nil {
		return false, err
	}
	return len(polled) > 0, nil
}

// Recv returns the next message part.
func (s *Source) Recv() ([]byte, error) {
	return s.sock.RecvBytes(0)
}

// Close releases the socket and its context.
func (s *Source) Close() error {
	err := s.sock.Close()
	if terr := s.ctx.Term(); err == nil {
		err = terr
	}
	return err
}
