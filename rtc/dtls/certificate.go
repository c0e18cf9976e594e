package dtls

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/pion/dtls/v2/pkg/crypto/fingerprint"
)

type Fingerprint struct {
	Algorithm string
	Value     string
}

type CertificateGenerator interface {
	GenerateCertificate() (*Certificate, error)
}

type defaultCertificateGenerator struct {
	cert *Certificate
}

func (d *defaultCertificateGenerator) GenerateCertificate() (*Certificate, error) {
	return d.cert, nil
}

type uniqueCertificateGenerator struct{}

func (u *uniqueCertificateGenerator) GenerateCertificate() (*Certificate, error) {
	return GenerateCertificate()
}

// NewCertManager if unique is true, we generate a cert for every call,
// otherwise we will use only one cert for all sessions.
func NewCertManager(unique bool) (CertificateGenerator, error) {
	if unique {
		return &uniqueCertificateGenerator{}, nil
	}
	cert, err := GenerateCertificate()
	if err != nil {
		return nil, err
	}
	return &defaultCertificateGenerator{cert: cert}, nil
}

// GenerateCertificate creates a self-signed ECDSA identity suitable for a
// DTLS handshake validated by fingerprint rather than by chain.
func GenerateCertificate() (*Certificate, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	secretKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	origin := make([]byte, 16)
	/* #nosec */
	if _, err := rand.Read(origin); err != nil {
		return nil, err
	}

	// Max random value, a 130-bits integer, i.e 2^130 - 1
	maxBigInt := new(big.Int)
	/* #nosec */
	maxBigInt.Exp(big.NewInt(2), big.NewInt(130), nil).Sub(maxBigInt, big.NewInt(1))
	/* #nosec */
	serialNumber, err := rand.Int(rand.Reader, maxBigInt)
	if err != nil {
		return nil, err
	}

	return NewCertificate(secretKey, x509.Certificate{
		ExtKeyUsage: []x509.ExtKeyUsage{
			x509.ExtKeyUsageClientAuth,
			x509.ExtKeyUsageServerAuth,
		},
		BasicConstraintsValid: true,
		NotBefore:             time.Now(),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		NotAfter:              time.Now().AddDate(1, 0, 0),
		SerialNumber:          serialNumber,
		Version:               2,
		Subject:               pkix.Name{CommonName: hex.EncodeToString(origin)},
		IsCA:                  true,
	})
}

type Certificate struct {
	privateKey   crypto.PrivateKey
	x509Cert     *x509.Certificate
	fingerprints []Fingerprint
}

// NewCertificate builds a Certificate from an existing key and a template,
// callers who need specific certificate parameters use this instead of
// GenerateCertificate.
func NewCertificate(key crypto.PrivateKey, tpl x509.Certificate) (*Certificate, error) {
	var certDER []byte
	var err error
	switch sk := key.(type) {
	case *rsa.PrivateKey:
		tpl.SignatureAlgorithm = x509.SHA256WithRSA
		certDER, err = x509.CreateCertificate(rand.Reader, &tpl, &tpl, sk.Public(), sk)
	case *ecdsa.PrivateKey:
		tpl.SignatureAlgorithm = x509.ECDSAWithSHA256
		certDER, err = x509.CreateCertificate(rand.Reader, &tpl, &tpl, sk.Public(), sk)
	default:
		return nil, errors.New("unsupported private key type")
	}
	if err != nil {
		return nil, err
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, err
	}

	return &Certificate{privateKey: key, x509Cert: cert}, nil
}

// LoadCertificate reads a PEM certificate and private key pair from disk.
// A missing or unreadable file is a configuration error, reported before
// any handshake is attempted.
func LoadCertificate(certFile, keyFile string) (*Certificate, error) {
	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingCertificate, err)
	}
	cert, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingCertificate, err)
	}
	return &Certificate{privateKey: pair.PrivateKey, x509Cert: cert}, nil
}

// Save writes the certificate and key as PEM files, the format
// LoadCertificate and any common DTLS stack reads back.
func (c *Certificate) Save(certFile, keyFile string) error {
	keyDER, err := x509.MarshalPKCS8PrivateKey(c.privateKey)
	if err != nil {
		return err
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.x509Cert.Raw})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(certFile, certPEM, 0o600); err != nil {
		return err
	}
	return os.WriteFile(keyFile, keyPEM, 0o600)
}

func (c *Certificate) Fingerprints() []Fingerprint {
	if len(c.fingerprints) != 0 {
		return c.fingerprints
	}
	fingerprintAlgorithms := []crypto.Hash{crypto.SHA256}
	c.fingerprints = make([]Fingerprint, len(fingerprintAlgorithms))
	for i, algo := range fingerprintAlgorithms {
		name, err := fingerprint.StringFromHash(algo)
		if err != nil {
			panic(err)
		}
		value, err := fingerprint.Fingerprint(c.x509Cert, algo)
		if err != nil {
			panic(err)
		}
		c.fingerprints[i] = Fingerprint{
			Algorithm: name,
			Value:     strings.ToUpper(value), // firefox required up case.
		}
	}
	return c.fingerprints
}

func (c *Certificate) tlsCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{c.x509Cert.Raw},
		PrivateKey:  c.privateKey,
	}
}
