package session

import (
	"errors"
)

var (
	ErrNoConn           = errors.New("no socket supplied")          // ErrNoConn will raise if the option carries no socket.
	ErrNoRemoteAddr     = errors.New("no remote address supplied")  // ErrNoRemoteAddr will raise if the client role has no peer address.
	ErrNotConnected     = errors.New("session not connected")       // ErrNotConnected will raise on sends before the secure channel is up.
	ErrAlreadyStarted   = errors.New("session already started")     // ErrAlreadyStarted will raise on a second Start call.
	ErrHandshakeTimeout = errors.New("handshake timed out")         // ErrHandshakeTimeout will raise when the handshake misses the deadline.
	ErrSendQueueFull    = errors.New("send queue full")             // ErrSendQueueFull will raise when the outbound queue overflows, the packet is dropped.
	ErrPacketTooLarge   = errors.New("packet exceeds mtu")          // ErrPacketTooLarge will raise when a marshaled packet cannot fit the send buffer, nothing is sent.
)
