package dtls

import (
	"fmt"
)

// keyingMaterialLabel is the exporter label fixed by RFC 5764, it is not
// configurable.
const keyingMaterialLabel = "EXTRACTOR-dtls_srtp"

// Key and salt lengths of SRTP_AES128_CM_HMAC_SHA1_80, the one profile this
// package negotiates.
const (
	MasterKeyLen  = 16
	MasterSaltLen = 14
)

// KeyingMaterial is the exporter output split by direction for the local
// side. Immutable once derived, the session it came from may be shut down
// right after.
type KeyingMaterial struct {
	LocalKey   []byte
	LocalSalt  []byte
	RemoteKey  []byte
	RemoteSalt []byte
}

// DeriveKeyingMaterial exports 2*(key+salt) bytes from a completed
// handshake and splits them in the exporter's fixed order: client key,
// server key, client salt, server salt. The order must be preserved
// exactly, swapping client and server breaks interop silently. The
// local/remote mapping then follows the handshake role: the client writes
// with the client half, the server with the server half.
func DeriveKeyingMaterial(s *HandshakeSession) (*KeyingMaterial, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.state != stateCompleted {
		return nil, ErrNotComplete
	}

	material, err := s.tlsState.ExportKeyingMaterial(keyingMaterialLabel, nil, 2*(MasterKeyLen+MasterSaltLen))
	if err != nil {
		return nil, fmt.Errorf("export keying material: %s", err)
	}

	offset := 0
	clientKey := material[offset : offset+MasterKeyLen]
	offset += MasterKeyLen
	serverKey := material[offset : offset+MasterKeyLen]
	offset += MasterKeyLen
	clientSalt := material[offset : offset+MasterSaltLen]
	offset += MasterSaltLen
	serverSalt := material[offset : offset+MasterSaltLen]

	km := &KeyingMaterial{}
	if s.role == RoleClient {
		km.LocalKey = clone(clientKey)
		km.LocalSalt = clone(clientSalt)
		km.RemoteKey = clone(serverKey)
		km.RemoteSalt = clone(serverSalt)
	} else {
		km.LocalKey = clone(serverKey)
		km.LocalSalt = clone(serverSalt)
		km.RemoteKey = clone(clientKey)
		km.RemoteSalt = clone(clientSalt)
	}
	return km, nil
}

func clone(b []byte) []byte {
	a := make([]byte, len(b))
	copy(a, b)
	return a
}
