package dtls

import (
	"errors"
)

var (
	ErrMissingCertificate  = errors.New("certificate or key unavailable")         // ErrMissingCertificate will raise if the credential files are missing or unreadable, a configuration error.
	ErrInvalidRole         = errors.New("invalid handshake role")                 // ErrInvalidRole will raise if the role is not server or client.
	ErrHandshakeAlreadyRun = errors.New("handshake already run")                  // ErrHandshakeAlreadyRun will raise on a second DoHandshakeAs* call.
	ErrRoleMismatch        = errors.New("handshake role mismatch")                // ErrRoleMismatch will raise if DoHandshakeAs* does not match the session role.
	ErrHandshakeFailed     = errors.New("handshake failed")                       // ErrHandshakeFailed will raise on any handshake protocol failure.
	ErrNotComplete         = errors.New("handshake not complete")                 // ErrNotComplete will raise if key material is requested before completion.
	ErrNoProtectionProfile = errors.New("no srtp protection profile negotiated")  // ErrNoProtectionProfile will raise if the peer did not accept the srtp extension.
	ErrNoPeerCertificate   = errors.New("peer presented no certificate")          // ErrNoPeerCertificate will raise if the peer did not present a certificate.
	ErrFingerprintMismatch = errors.New("peer fingerprint mismatch")              // ErrFingerprintMismatch will raise if a pinned fingerprint does not match.
	ErrNoPeerAddress       = errors.New("no peer address for handshake")          // ErrNoPeerAddress will raise if the client handshake is started without a peer address.
	ErrSessionShutdown     = errors.New("session has shut down")                  // ErrSessionShutdown will raise when using a session after Shutdown.
)
