// Package crypto loads client certificates for store authentication and
// provides a cryptographically secure random source.
package crypto

import (
	"crypto/rand"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pkcs12"
)

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// RandInt63 returns a non-negative cryptographically secure random int64.
func RandInt63() (int64, error) {
	b, err := RandBytes(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b) &^ (1 << 63)), nil
}

// LoadClientCertificate reads a client certificate from disk.
// Files ending in .p12 or .pfx are decoded as PKCS#12 with the given password,
// anything else is treated as PEM holding both the certificate and its key.
func LoadClientCertificate(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("read certificate: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".p12", ".pfx":
		return ParsePKCS12(data, password)
	default:
		return ParsePEM(data)
	}
}

// ParsePKCS12 decodes a PKCS#12 bundle holding one certificate and its private key.
func ParsePKCS12(data []byte, password string) (tls.Certificate, error) {
	key, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decode pkcs12: %w", err)
	}
	if cert == nil || key == nil {
		return tls.Certificate{}, errors.New("decode pkcs12: missing certificate or key")
	}
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
		Leaf:        cert,
	}, nil
}

// ParsePEM decodes a PEM bundle containing a certificate chain and a private key.
func ParsePEM(data []byte) (tls.Certificate, error) {
	cert, err := tls.X509KeyPair(data, data)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decode pem: %w", err)
	}
	return cert, nil
}
