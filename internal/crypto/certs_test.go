package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func selfSignedPEM(t *testing.T) []byte {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "docrepo-client"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: der}))
	require.NoError(t, pem.Encode(&buf, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}))
	return buf.Bytes()
}

func TestRandInt63_NonNegativeAndVarying(t *testing.T) {
	t.Parallel()

	seen := make(map[int64]struct{})
	for i := 0; i < 64; i++ {
		v, err := RandInt63()
		require.NoError(t, err)
		require.GreaterOrEqual(t, v, int64(0))
		seen[v] = struct{}{}
	}
	if len(seen) < 60 {
		t.Fatalf("RandInt63 looks non-random: %d distinct of 64", len(seen))
	}
}

func TestParsePEM_OK(t *testing.T) {
	t.Parallel()

	cert, err := ParsePEM(selfSignedPEM(t))
	require.NoError(t, err)
	require.Len(t, cert.Certificate, 1)
	require.NotNil(t, cert.PrivateKey)
}

func TestParsePEM_Garbage(t *testing.T) {
	t.Parallel()

	_, err := ParsePEM([]byte("not a pem"))
	require.Error(t, err)
}

func TestParsePKCS12_Garbage(t *testing.T) {
	t.Parallel()

	_, err := ParsePKCS12([]byte{0x30, 0x01, 0x00}, "secret")
	require.Error(t, err)
}

func TestLoadClientCertificate_ByExtension(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pemPath := filepath.Join(dir, "client.pem")
	require.NoError(t, os.WriteFile(pemPath, selfSignedPEM(t), 0o600))

	cert, err := LoadClientCertificate(pemPath, "")
	require.NoError(t, err)
	require.Len(t, cert.Certificate, 1)

	pfxPath := filepath.Join(dir, "client.pfx")
	require.NoError(t, os.WriteFile(pfxPath, []byte("junk"), 0o600))
	_, err = LoadClientCertificate(pfxPath, "pw")
	require.ErrorContains(t, err, "decode pkcs12")

	_, err = LoadClientCertificate(filepath.Join(dir, "missing.pem"), "")
	require.ErrorContains(t, err, "read certificate")
}
