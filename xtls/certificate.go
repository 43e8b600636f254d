// Package xtls loads the local X.509 certificate whose fingerprint is
// advertised in Jingle security elements for end-to-end certificate-based
// authentication.
package xtls

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNoCertificate indicates the PEM input contained no certificate block.
	ErrNoCertificate = errors.New("no certificate found in PEM data")

	// ErrUnknownDigest indicates an unsupported fingerprint digest name.
	ErrUnknownDigest = errors.New("unknown fingerprint digest")
)

// Certificate wraps a parsed X.509 certificate and exposes the two
// operations the security-element builder needs: the declared signature
// digest and a fingerprint under a named digest.
type Certificate struct {
	cert *x509.Certificate
}

// LoadCertificate reads a PEM file and parses the first certificate block.
func LoadCertificate(path string) (*Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cert, err := ParseCertificate(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "LoadCertificate",
		"path":     path,
		"subject":  cert.cert.Subject.CommonName,
	}).Debug("Loaded local certificate")

	return cert, nil
}

// ParseCertificate parses the first certificate block in PEM data.
func ParseCertificate(data []byte) (*Certificate, error) {
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, ErrNoCertificate
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		return &Certificate{cert: cert}, nil
	}
}

// SignatureAlgorithm returns the digest half of the certificate's declared
// signature algorithm in lower case, e.g. "sha256" for SHA256-RSA or
// ECDSA-SHA256. Algorithms without a digest component (Ed25519) fall back
// to sha256.
func (c *Certificate) SignatureAlgorithm() string {
	for _, part := range strings.Split(c.cert.SignatureAlgorithm.String(), "-") {
		if strings.HasPrefix(part, "SHA") {
			return strings.ToLower(part)
		}
	}
	return "sha256"
}

// Fingerprint computes the certificate's fingerprint under the named
// digest, formatted as colon-separated uppercase hex pairs.
func (c *Certificate) Fingerprint(digest string) (string, error) {
	var sum []byte
	switch strings.ToLower(digest) {
	case "sha1":
		s := sha1.Sum(c.cert.Raw)
		sum = s[:]
	case "sha256":
		s := sha256.Sum256(c.cert.Raw)
		sum = s[:]
	case "sha384":
		s := sha512.Sum384(c.cert.Raw)
		sum = s[:]
	case "sha512":
		s := sha512.Sum512(c.cert.Raw)
		sum = s[:]
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDigest, digest)
	}

	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":"), nil
}
