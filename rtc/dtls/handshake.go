package dtls

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/gotolive/securemedia/rtc/logger"
	"github.com/pion/dtls/v2"
	"github.com/pion/dtls/v2/pkg/crypto/fingerprint"
	"github.com/pion/logging"
	"github.com/pion/srtp/v2"
)

type Role int

const (
	RoleServer Role = iota + 1 // accepting side, needs certificate and key
	RoleClient                 // initiating side, may use an ephemeral identity
)

func (r Role) String() string {
	switch r {
	case RoleServer:
		return "server"
	case RoleClient:
		return "client"
	}
	return "unknown"
}

// session states
const (
	stateNew = iota + 1
	stateInHandshake
	stateCompleted
	stateFailed
)

type Option struct {
	Role     Role
	CertFile string
	KeyFile  string
	// Certificate wins over CertFile/KeyFile when both are set.
	Certificate *Certificate
	// RemoteFingerprint pins the peer certificate. Optional, callers usually
	// compare PeerFingerprint against the signaled value themselves.
	RemoteFingerprint *Fingerprint
	LoggerFactory     logging.LoggerFactory
	Log               logger.Logger
}

// HandshakeSession drives one DTLS handshake over a connected UDP socket
// supplied by the caller, then exposes the session for SRTP key export.
// A session handshakes at most once, retry means a new session.
type HandshakeSession struct {
	m               sync.Mutex
	role            Role
	state           int
	cert            *Certificate
	remoteFp        *Fingerprint
	conn            *dtls.Conn
	tlsState        dtls.State
	profile         srtp.ProtectionProfile
	peerFingerprint []byte
	peerAddr        net.Addr
	shut            bool
	shutdown        sync.Once
	factory         logging.LoggerFactory
	log             logger.Logger
}

func NewHandshakeSession(option Option) (*HandshakeSession, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	if option.Role != RoleServer && option.Role != RoleClient {
		return nil, ErrInvalidRole
	}

	cert := option.Certificate
	var err error
	switch {
	case cert != nil:
	case option.CertFile != "" || option.KeyFile != "":
		if cert, err = LoadCertificate(option.CertFile, option.KeyFile); err != nil {
			return nil, err
		}
	case option.Role == RoleServer:
		return nil, fmt.Errorf("%w: server role needs cert and key files", ErrMissingCertificate)
	default:
		// client with no credentials, present an ephemeral identity
		if cert, err = GenerateCertificate(); err != nil {
			return nil, err
		}
	}

	factory := option.LoggerFactory
	if factory == nil {
		factory = loggerFactory
	}
	log := option.Log
	if log == nil {
		log = logger.NewLogger(logger.LevelWarn, "dtls")
	}

	return &HandshakeSession{
		role:     option.Role,
		state:    stateNew,
		cert:     cert,
		remoteFp: option.RemoteFingerprint,
		factory:  factory,
		log:      log,
	}, nil
}

// DoHandshakeAsServer waits for a client to initiate the handshake on conn
// and blocks until it completes or fails. There is no built-in timeout,
// callers wanting a bounded wait run this on its own goroutine and abandon
// it, see rtc/session.
func (s *HandshakeSession) DoHandshakeAsServer(conn net.PacketConn) error {
	if err := s.begin(RoleServer); err != nil {
		return err
	}
	hc := newHandshakeConn(conn, nil)
	dtlsConn, err := dtls.Server(hc, s.config())
	return s.finish(hc, dtlsConn, err)
}

// DoHandshakeAsClient initiates the handshake towards peer on conn and
// blocks like DoHandshakeAsServer. The socket may carry other protocols,
// but a concurrent reader during the handshake window can starve the
// engine of flights, serializing access is the caller's responsibility.
func (s *HandshakeSession) DoHandshakeAsClient(conn net.PacketConn, peer *net.UDPAddr) error {
	if peer == nil {
		return ErrNoPeerAddress
	}
	if err := s.begin(RoleClient); err != nil {
		return err
	}
	hc := newHandshakeConn(conn, peer)
	dtlsConn, err := dtls.Client(hc, s.config())
	return s.finish(hc, dtlsConn, err)
}

func (s *HandshakeSession) begin(role Role) error {
	s.m.Lock()
	defer s.m.Unlock()
	if s.shut {
		return ErrSessionShutdown
	}
	if s.role != role {
		return ErrRoleMismatch
	}
	if s.state != stateNew {
		return ErrHandshakeAlreadyRun
	}
	s.state = stateInHandshake
	return nil
}

func (s *HandshakeSession) config() *dtls.Config {
	cfg := &dtls.Config{
		Certificates: []tls.Certificate{s.cert.tlsCertificate()},
		SRTPProtectionProfiles: []dtls.SRTPProtectionProfile{
			dtls.SRTP_AES128_CM_HMAC_SHA1_80,
		},
		// self-signed certs are expected, the fingerprint is compared
		// out-of-band against the signaled value.
		InsecureSkipVerify: true,
		ClientAuth:         dtls.RequireAnyClientCert,
		LoggerFactory:      s.factory,
		// the engine defaults to a 30s connect timeout. DoHandshakeAs* blocks
		// until done, bounding the wait is the caller's job.
		ConnectContextMaker: func() (context.Context, func()) {
			return context.WithCancel(context.Background())
		},
	}
	if s.role == RoleServer {
		cfg.ExtendedMasterSecret = dtls.RequireExtendedMasterSecret
	}
	return cfg
}

func (s *HandshakeSession) finish(hc *handshakeConn, conn *dtls.Conn, err error) error {
	s.m.Lock()
	defer s.m.Unlock()
	if err != nil {
		s.state = stateFailed
		s.log.Error("handshake failed:", s.role, err)
		return fmt.Errorf("%w: %s", ErrHandshakeFailed, err)
	}
	if s.shut {
		// shut down while the handshake was in flight
		s.state = stateFailed
		_ = conn.Close()
		return ErrSessionShutdown
	}

	profile, ok := conn.SelectedSRTPProtectionProfile()
	if !ok {
		s.state = stateFailed
		_ = conn.Close()
		return ErrNoProtectionProfile
	}
	switch profile {
	case dtls.SRTP_AES128_CM_HMAC_SHA1_80:
		s.profile = srtp.ProtectionProfileAes128CmHmacSha1_80
	default:
		s.state = stateFailed
		_ = conn.Close()
		return fmt.Errorf("%w: unexpected profile %d", ErrNoProtectionProfile, profile)
	}

	remoteCerts := conn.ConnectionState().PeerCertificates
	if len(remoteCerts) == 0 {
		// both sides must present one, we require client certs and always
		// receive the server's
		s.state = stateFailed
		_ = conn.Close()
		return ErrNoPeerCertificate
	}
	digest := sha256.Sum256(remoteCerts[0])
	s.peerFingerprint = digest[:]
	if err := s.validateFingerprint(remoteCerts[0]); err != nil {
		s.state = stateFailed
		s.peerFingerprint = nil
		_ = conn.Close()
		return err
	}

	s.conn = conn
	s.tlsState = conn.ConnectionState()
	s.peerAddr = hc.RemoteAddr()
	s.state = stateCompleted
	s.log.Debug("handshake complete:", s.role)
	return nil
}

// we consider pinning optional, if a fingerprint was supplied we validate
// it, if not the caller compares PeerFingerprint against signaling itself.
func (s *HandshakeSession) validateFingerprint(remoteCert []byte) error {
	if s.remoteFp == nil {
		return nil
	}
	parsed, err := x509.ParseCertificate(remoteCert)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrFingerprintMismatch, err)
	}
	hashAlgo, err := fingerprint.HashFromString(s.remoteFp.Algorithm)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrFingerprintMismatch, err)
	}
	remoteValue, err := fingerprint.Fingerprint(parsed, hashAlgo)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrFingerprintMismatch, err)
	}
	if strings.EqualFold(remoteValue, s.remoteFp.Value) {
		return nil
	}
	return ErrFingerprintMismatch
}

// IsHandshakeComplete is true exactly when the engine reached the
// established state.
func (s *HandshakeSession) IsHandshakeComplete() bool {
	s.m.Lock()
	defer s.m.Unlock()
	return s.state == stateCompleted
}

// PeerFingerprint is the SHA-256 digest of the peer's DER certificate,
// nil before completion.
func (s *HandshakeSession) PeerFingerprint() []byte {
	s.m.Lock()
	defer s.m.Unlock()
	if s.state != stateCompleted || s.peerFingerprint == nil {
		return nil
	}
	fp := make([]byte, len(s.peerFingerprint))
	copy(fp, s.peerFingerprint)
	return fp
}

// PeerFingerprintString renders the peer fingerprint the way SDP carries
// it, upper case colon-separated hex.
func (s *HandshakeSession) PeerFingerprintString() string {
	fp := s.PeerFingerprint()
	if fp == nil {
		return ""
	}
	parts := make([]string, len(fp))
	for i, b := range fp {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}

func (s *HandshakeSession) LocalFingerprints() []Fingerprint {
	return s.cert.Fingerprints()
}

func (s *HandshakeSession) Role() Role {
	return s.role
}

// PeerAddr is the address the handshake ran against. For the server role
// it is learned from the first client flight, nil before completion.
func (s *HandshakeSession) PeerAddr() net.Addr {
	s.m.Lock()
	defer s.m.Unlock()
	if s.state != stateCompleted {
		return nil
	}
	return s.peerAddr
}

// ProtectionProfile is the negotiated SRTP profile, only meaningful after
// completion.
func (s *HandshakeSession) ProtectionProfile() srtp.ProtectionProfile {
	s.m.Lock()
	defer s.m.Unlock()
	return s.profile
}

// Shutdown releases the engine connection. Safe to call from any state and
// any number of times, including before a handshake ever ran. The caller's
// socket stays open, it was only borrowed.
func (s *HandshakeSession) Shutdown() {
	s.shutdown.Do(func() {
		s.m.Lock()
		s.shut = true
		conn := s.conn
		s.conn = nil
		s.m.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
	})
}
