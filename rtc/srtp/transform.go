// Package srtp wraps one derived (key, salt) pair and a fixed direction
// into a transform that protects or unprotects RTP and RTCP packets in
// place. Two independent instances are always created per session, the
// engine's SSRC and replay state is direction-specific and must not be
// shared.
package srtp

import (
	"fmt"
	"strings"

	"github.com/gotolive/securemedia/rtc/dtls"
	"github.com/pion/srtp/v2"
)

type Direction int

const (
	Outbound Direction = iota + 1 // protect only
	Inbound                       // unprotect only, replay-checked
)

func (d Direction) String() string {
	switch d {
	case Outbound:
		return "outbound"
	case Inbound:
		return "inbound"
	}
	return "unknown"
}

const (
	// DefaultReplayWindow matches libsrtp's default anti-replay window.
	DefaultReplayWindow = 128

	// SRTP_AES128_CM_HMAC_SHA1_80 overheads. RTCP additionally carries the
	// 4-byte SRTCP index before the tag.
	rtpAuthTagLen  = 10
	rtcpAuthTagLen = 10
	srtcpIndexLen  = 4

	minRTPLen  = 12
	minRTCPLen = 8
)

type TransformOption func(*transformOptions)

type transformOptions struct {
	replayWindow uint
}

// WithReplayWindow overrides the inbound anti-replay window size.
func WithReplayWindow(size uint) TransformOption {
	return func(o *transformOptions) {
		o.replayWindow = size
	}
}

// Transform is one directional SRTP context. A given instance only ever
// protects or only ever unprotects. Not safe for concurrent use, the two
// directions of a session are independent and may run on separate
// goroutines without coordination.
type Transform struct {
	direction Direction
	ctx       *srtp.Context
	scratch   []byte
}

// NewTransform builds a transform from a raw key and salt, the
// pre-shared-key and testing path. Production sessions use
// NewTransformPair.
func NewTransform(key, salt []byte, direction Direction, opts ...TransformOption) (*Transform, error) {
	if err := dtls.Initialize(); err != nil {
		return nil, err
	}
	if direction != Outbound && direction != Inbound {
		return nil, ErrInvalidDirection
	}
	if len(key) != dtls.MasterKeyLen || len(salt) != dtls.MasterSaltLen {
		return nil, fmt.Errorf("%w: key %d salt %d", ErrInvalidKeyLength, len(key), len(salt))
	}

	options := transformOptions{replayWindow: DefaultReplayWindow}
	for _, opt := range opts {
		opt(&options)
	}

	var ctxOpts []srtp.ContextOption
	if direction == Inbound {
		ctxOpts = append(ctxOpts,
			srtp.SRTPReplayProtection(options.replayWindow),
			srtp.SRTCPReplayProtection(options.replayWindow),
		)
	}

	ctx, err := srtp.CreateContext(key, salt, srtp.ProtectionProfileAes128CmHmacSha1_80, ctxOpts...)
	if err != nil {
		return nil, fmt.Errorf("create srtp context: %s", err)
	}
	return &Transform{
		direction: direction,
		ctx:       ctx,
		scratch:   make([]byte, 0, 1500),
	}, nil
}

// NewTransformPair builds the send and receive transforms for a completed
// handshake, deriving the keying material internally. The session may be
// shut down once this returns.
func NewTransformPair(session *dtls.HandshakeSession, opts ...TransformOption) (outbound, inbound *Transform, err error) {
	km, err := dtls.DeriveKeyingMaterial(session)
	if err != nil {
		return nil, nil, err
	}
	if outbound, err = NewTransform(km.LocalKey, km.LocalSalt, Outbound, opts...); err != nil {
		return nil, nil, err
	}
	if inbound, err = NewTransform(km.RemoteKey, km.RemoteSalt, Inbound, opts...); err != nil {
		return nil, nil, err
	}
	return outbound, inbound, nil
}

func (t *Transform) Direction() Direction {
	return t.direction
}

// ProtectRTP encrypts and authenticates buf[:length] in place, appending
// the auth tag. buf needs spare trailing capacity for the tag. Returns the
// new total length.
func (t *Transform) ProtectRTP(buf []byte, length int) (int, error) {
	if t.direction != Outbound {
		return 0, ErrWrongDirection
	}
	if length < minRTPLen || length > len(buf) {
		return 0, fmt.Errorf("%w: rtp length %d", ErrMalformedPacket, length)
	}
	// reject before encrypting, the engine's sequence state must not
	// advance for a packet the caller never gets back
	if length+rtpAuthTagLen > len(buf) {
		return 0, fmt.Errorf("%w: need %d have %d", ErrShortBuffer, length+rtpAuthTagLen, len(buf))
	}
	out, err := t.ctx.EncryptRTP(t.scratch[:0], buf[:length], nil)
	if err != nil {
		return 0, classify(err)
	}
	t.scratch = out
	if len(out) > len(buf) {
		return 0, fmt.Errorf("%w: need %d have %d", ErrShortBuffer, len(out), len(buf))
	}
	copy(buf, out)
	return len(out), nil
}

// UnprotectRTP verifies and decrypts buf[:length] in place, removing the
// auth tag. Returns the new shorter length.
func (t *Transform) UnprotectRTP(buf []byte, length int) (int, error) {
	if t.direction != Inbound {
		return 0, ErrWrongDirection
	}
	if length < minRTPLen+rtpAuthTagLen || length > len(buf) {
		return 0, fmt.Errorf("%w: srtp length %d", ErrMalformedPacket, length)
	}
	out, err := t.ctx.DecryptRTP(t.scratch[:0], buf[:length], nil)
	if err != nil {
		return 0, classify(err)
	}
	t.scratch = out
	copy(buf, out)
	return len(out), nil
}

// ProtectRTCP encrypts and authenticates a compound RTCP packet in place,
// appending the SRTCP index and auth tag.
func (t *Transform) ProtectRTCP(buf []byte, length int) (int, error) {
	if t.direction != Outbound {
		return 0, ErrWrongDirection
	}
	if length < minRTCPLen || length > len(buf) {
		return 0, fmt.Errorf("%w: rtcp length %d", ErrMalformedPacket, length)
	}
	if length+srtcpIndexLen+rtcpAuthTagLen > len(buf) {
		return 0, fmt.Errorf("%w: need %d have %d", ErrShortBuffer, length+srtcpIndexLen+rtcpAuthTagLen, len(buf))
	}
	out, err := t.ctx.EncryptRTCP(t.scratch[:0], buf[:length], nil)
	if err != nil {
		return 0, classify(err)
	}
	t.scratch = out
	if len(out) > len(buf) {
		return 0, fmt.Errorf("%w: need %d have %d", ErrShortBuffer, len(out), len(buf))
	}
	copy(buf, out)
	return len(out), nil
}

// UnprotectRTCP verifies and decrypts a compound RTCP packet in place.
func (t *Transform) UnprotectRTCP(buf []byte, length int) (int, error) {
	if t.direction != Inbound {
		return 0, ErrWrongDirection
	}
	if length < minRTCPLen+srtcpIndexLen+rtcpAuthTagLen || length > len(buf) {
		return 0, fmt.Errorf("%w: srtcp length %d", ErrMalformedPacket, length)
	}
	out, err := t.ctx.DecryptRTCP(t.scratch[:0], buf[:length], nil)
	if err != nil {
		return 0, classify(err)
	}
	t.scratch = out
	copy(buf, out)
	return len(out), nil
}

// classify folds engine errors into the coarse kinds callers act on. The
// engine keeps its sentinels unexported, so this goes by message text, the
// wrapped original is preserved for diagnostics.
func classify(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "duplicated"):
		return fmt.Errorf("%w: %s", ErrReplayOrOutOfWindow, err)
	case strings.Contains(msg, "auth"):
		return fmt.Errorf("%w: %s", ErrAuthenticationFailed, err)
	case strings.Contains(msg, "too short"), strings.Contains(msg, "insufficient"), strings.Contains(msg, "invalid"):
		return fmt.Errorf("%w: %s", ErrMalformedPacket, err)
	}
	return err
}
