// Package session is the thin orchestrator over one shared UDP socket: it
// drives the DTLS handshake to completion, builds the two directional SRTP
// transforms from the derived keys and runs the packet demux that feeds
// unprotected RTP/RTCP to the caller.
package session

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gotolive/securemedia/rtc/dtls"
	"github.com/gotolive/securemedia/rtc/logger"
	"github.com/gotolive/securemedia/rtc/srtp"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

const (
	StateNew        = 1
	StateConnecting = 2
	StateConnected  = 3
	StateFailed     = 4
	StateClosed     = 5
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultMTU              = 1500
	sendQueueLen            = 100

	// worst-case growth of a protected packet, srtcp index plus auth tag.
	protectOverhead = 14
)

type Option struct {
	// Conn is borrowed, the caller keeps close responsibility. Only one
	// handshake may be in flight per socket at a time.
	Conn net.PacketConn
	Role dtls.Role
	// RemoteAddr is required for the client role, the server learns the
	// peer from the first handshake flight.
	RemoteAddr *net.UDPAddr
	CertFile   string
	KeyFile    string
	// Certificate wins over the file paths when set.
	Certificate *dtls.Certificate
	// RemoteFingerprint pins the peer certificate when known from signaling.
	RemoteFingerprint *dtls.Fingerprint
	// HandshakeTimeout bounds Start, default 10s. The blocking handshake is
	// abandoned on timeout, not aborted, its session is discarded.
	HandshakeTimeout time.Duration
	ReplayWindow     uint
	OnRTP            func(*rtp.Packet)
	OnRTCP           func([]rtcp.Packet)
	OnState          func(int)
	Log              logger.Logger
}

// Stats counts per-packet outcomes. Per-packet protection failures are
// dropped and counted, never surfaced per-packet and never fatal.
type Stats struct {
	RTPReceived      uint64
	RTCPReceived     uint64
	RTPSent          uint64
	RTCPSent         uint64
	DroppedAuth      uint64
	DroppedReplay    uint64
	DroppedMalformed uint64
	DroppedOther     uint64
}

type Session struct {
	option    Option
	conn      net.PacketConn
	handshake *dtls.HandshakeSession
	outbound  *srtp.Transform
	inbound   *srtp.Transform
	remote    net.Addr
	log       logger.Logger

	state   atomic.Int32
	started atomic.Bool

	sendRTPCh  chan []byte
	sendRTCPCh chan []byte
	closeCh    chan struct{}
	closeOnce  sync.Once

	rtpReceived      atomic.Uint64
	rtcpReceived     atomic.Uint64
	rtpSent          atomic.Uint64
	rtcpSent         atomic.Uint64
	droppedAuth      atomic.Uint64
	droppedReplay    atomic.Uint64
	droppedMalformed atomic.Uint64
	droppedOther     atomic.Uint64
}

func New(option Option) (*Session, error) {
	if option.Conn == nil {
		return nil, ErrNoConn
	}
	if option.Role == dtls.RoleClient && option.RemoteAddr == nil {
		return nil, ErrNoRemoteAddr
	}
	if option.HandshakeTimeout == 0 {
		option.HandshakeTimeout = defaultHandshakeTimeout
	}
	log := option.Log
	if log == nil {
		log = logger.NewLogger(logger.LevelWarn, "session")
	}

	// configuration errors (role, missing credential files) surface here,
	// before any packet moves.
	handshake, err := dtls.NewHandshakeSession(dtls.Option{
		Role:              option.Role,
		CertFile:          option.CertFile,
		KeyFile:           option.KeyFile,
		Certificate:       option.Certificate,
		RemoteFingerprint: option.RemoteFingerprint,
		Log:               log,
	})
	if err != nil {
		return nil, err
	}

	s := &Session{
		option:     option,
		conn:       option.Conn,
		handshake:  handshake,
		log:        log,
		sendRTPCh:  make(chan []byte, sendQueueLen),
		sendRTCPCh: make(chan []byte, sendQueueLen),
		closeCh:    make(chan struct{}),
	}
	s.state.Store(StateNew)
	return s, nil
}

// Start blocks through the handshake, at most HandshakeTimeout, then
// starts the media loops. The handshake itself runs on its own goroutine,
// on timeout it is abandoned and the session discarded, the engine has no
// clean in-flight abort.
func (s *Session) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	s.setState(StateConnecting)

	errCh := make(chan error, 1)
	go func() {
		if s.option.Role == dtls.RoleServer {
			errCh <- s.handshake.DoHandshakeAsServer(s.conn)
		} else {
			errCh <- s.handshake.DoHandshakeAsClient(s.conn, s.option.RemoteAddr)
		}
	}()

	timer := time.NewTimer(s.option.HandshakeTimeout)
	defer timer.Stop()
	select {
	case err := <-errCh:
		if err != nil {
			s.setState(StateFailed)
			return err
		}
	case <-timer.C:
		s.setState(StateFailed)
		return fmt.Errorf("%w: after %s", ErrHandshakeTimeout, s.option.HandshakeTimeout)
	}

	var opts []srtp.TransformOption
	if s.option.ReplayWindow != 0 {
		opts = append(opts, srtp.WithReplayWindow(s.option.ReplayWindow))
	}
	outbound, inbound, err := srtp.NewTransformPair(s.handshake, opts...)
	if err != nil {
		// must not exchange media without both directions in place
		s.setState(StateFailed)
		return err
	}
	s.outbound = outbound
	s.inbound = inbound

	if s.option.RemoteAddr != nil {
		s.remote = s.option.RemoteAddr
	} else {
		s.remote = s.handshake.PeerAddr()
	}

	// the engine keeps a reader on the socket until its conn is closed,
	// which would race the media loop for every datagram. Keys and
	// fingerprints are already extracted, release it before reading media.
	s.handshake.Shutdown()

	go s.readLoop()
	go s.sendLoop()
	s.setState(StateConnected)
	return nil
}

func (s *Session) setState(state int32) {
	s.state.Store(state)
	if s.option.OnState != nil {
		s.option.OnState(int(state))
	}
}

func (s *Session) State() int {
	return int(s.state.Load())
}

func (s *Session) IsConnected() bool {
	return s.state.Load() == StateConnected
}

// PeerFingerprint exposes the handshake peer fingerprint for out-of-band
// comparison against the signaled value.
func (s *Session) PeerFingerprint() []byte {
	return s.handshake.PeerFingerprint()
}

func (s *Session) LocalFingerprints() []dtls.Fingerprint {
	return s.handshake.LocalFingerprints()
}

// SendRTP protects and queues one packet. A full queue drops the packet,
// real-time media never blocks the caller.
func (s *Session) SendRTP(packet *rtp.Packet) error {
	if !s.IsConnected() {
		return ErrNotConnected
	}
	raw, err := packet.Marshal()
	if err != nil {
		return err
	}
	if len(raw) > defaultMTU {
		return fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, len(raw))
	}
	select {
	case s.sendRTPCh <- raw:
		return nil
	default:
		s.droppedOther.Add(1)
		return ErrSendQueueFull
	}
}

func (s *Session) SendRTCP(packets []rtcp.Packet) error {
	if !s.IsConnected() {
		return ErrNotConnected
	}
	raw, err := rtcp.Marshal(packets)
	if err != nil {
		return err
	}
	if len(raw) > defaultMTU {
		return fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, len(raw))
	}
	select {
	case s.sendRTCPCh <- raw:
		return nil
	default:
		s.droppedOther.Add(1)
		return ErrSendQueueFull
	}
}

// sendLoop serializes all outbound protection, the outbound transform is
// not reentrant.
func (s *Session) sendLoop() {
	buf := make([]byte, defaultMTU+protectOverhead)
	for {
		select {
		case raw := <-s.sendRTPCh:
			n := copy(buf, raw)
			m, err := s.outbound.ProtectRTP(buf, n)
			if err != nil {
				s.log.Error("protect rtp fail:", err)
				s.droppedOther.Add(1)
				continue
			}
			if _, err = s.conn.WriteTo(buf[:m], s.remote); err != nil {
				s.log.Error("write rtp fail:", err)
				return
			}
			s.rtpSent.Add(1)
		case raw := <-s.sendRTCPCh:
			n := copy(buf, raw)
			m, err := s.outbound.ProtectRTCP(buf, n)
			if err != nil {
				s.log.Error("protect rtcp fail:", err)
				s.droppedOther.Add(1)
				continue
			}
			if _, err = s.conn.WriteTo(buf[:m], s.remote); err != nil {
				s.log.Error("write rtcp fail:", err)
				return
			}
			s.rtcpSent.Add(1)
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) readLoop() {
	buf := make([]byte, defaultMTU)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-s.closeCh:
			default:
				s.log.Error("read fail:", err)
				s.setState(StateFailed)
			}
			return
		}
		if s.remote != nil && addr.String() != s.remote.String() {
			continue
		}
		switch CheckPacket(buf[:n]) {
		case RTP:
			s.onRTPData(buf, n)
		case RTCP:
			s.onRTCPData(buf, n)
		case STUN:
			// connectivity checks belong to the caller's ICE layer
			s.log.Debug("stun on media socket, ignored")
		case DTLS:
			// late flights or close notify after the handshake window
			s.droppedOther.Add(1)
		default:
			s.droppedOther.Add(1)
		}
	}
}

func (s *Session) onRTPData(buf []byte, n int) {
	m, err := s.inbound.UnprotectRTP(buf, n)
	if err != nil {
		s.countDrop(err)
		return
	}
	s.rtpReceived.Add(1)
	if s.option.OnRTP == nil {
		return
	}
	// the callback may retain the packet, it gets its own copy
	data := make([]byte, m)
	copy(data, buf[:m])
	packet := &rtp.Packet{}
	if err := packet.Unmarshal(data); err != nil {
		s.log.Error("parse rtp fail:", err)
		s.droppedMalformed.Add(1)
		return
	}
	s.option.OnRTP(packet)
}

func (s *Session) onRTCPData(buf []byte, n int) {
	m, err := s.inbound.UnprotectRTCP(buf, n)
	if err != nil {
		s.countDrop(err)
		return
	}
	s.rtcpReceived.Add(1)
	if s.option.OnRTCP == nil {
		return
	}
	data := make([]byte, m)
	copy(data, buf[:m])
	packets, err := rtcp.Unmarshal(data)
	if err != nil {
		s.log.Error("parse rtcp fail:", err)
		s.droppedMalformed.Add(1)
		return
	}
	s.option.OnRTCP(packets)
}

// countDrop keeps the per-packet failure silent, only counted. A corrupted
// or replayed packet never tears down the session.
func (s *Session) countDrop(err error) {
	switch {
	case errors.Is(err, srtp.ErrReplayOrOutOfWindow):
		s.droppedReplay.Add(1)
	case errors.Is(err, srtp.ErrAuthenticationFailed):
		s.droppedAuth.Add(1)
	case errors.Is(err, srtp.ErrMalformedPacket):
		s.droppedMalformed.Add(1)
	default:
		s.droppedOther.Add(1)
	}
	s.log.Debug("packet dropped:", err)
}

func (s *Session) Stats() Stats {
	return Stats{
		RTPReceived:      s.rtpReceived.Load(),
		RTCPReceived:     s.rtcpReceived.Load(),
		RTPSent:          s.rtpSent.Load(),
		RTCPSent:         s.rtcpSent.Load(),
		DroppedAuth:      s.droppedAuth.Load(),
		DroppedReplay:    s.droppedReplay.Load(),
		DroppedMalformed: s.droppedMalformed.Load(),
		DroppedOther:     s.droppedOther.Load(),
	}
}

// Close stops the loops and shuts the handshake session down. The socket
// is left open for the caller, a past read deadline is set to unblock the
// read loop, callers reusing the socket reset it.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closeCh)
		_ = s.conn.SetReadDeadline(time.Now())
		s.handshake.Shutdown()
		s.setState(StateClosed)
	})
}
