// Package ports defines the interfaces that connect the receive loop to
// its collaborators.
//
//   - [MessageSource]: a connected pull-style message socket
//   - [StreamParser]: a state machine absorbing one framed part at a time
//
// The receive loop (internal/stream) depends only on these interfaces;
// internal/adapters/zmq and internal/archiver implement them. Tests drive
// the loop with in-memory fakes.
package ports
