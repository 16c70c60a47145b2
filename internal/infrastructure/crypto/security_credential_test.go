package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSignedCert(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "apicrypt.safaricom.co.ke"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	return key, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestRSACredentialEncrypter_RoundTrip(t *testing.T) {
	key, certPEM := selfSignedCert(t)

	enc, err := NewRSACredentialEncrypter(certPEM)
	require.NoError(t, err)

	credential, err := enc.Encrypt("Safaricom999!*!")
	require.NoError(t, err)

	ciphertext, err := base64.StdEncoding.DecodeString(credential)
	require.NoError(t, err)
	plain, err := rsa.DecryptPKCS1v15(rand.Reader, key, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "Safaricom999!*!", string(plain))
}

func TestRSACredentialEncrypter_InvalidCertificate(t *testing.T) {
	_, err := NewRSACredentialEncrypter([]byte("not a certificate"))
	assert.Error(t, err)
}

func TestResolveSecurityCredential(t *testing.T) {
	key, certPEM := selfSignedCert(t)
	path := filepath.Join(t.TempDir(), "ProductionCertificate.cer")
	require.NoError(t, os.WriteFile(path, certPEM, 0o600))

	t.Run("configured credential wins", func(t *testing.T) {
		got, err := ResolveSecurityCredential("preset", "pw", path)
		require.NoError(t, err)
		assert.Equal(t, "preset", got)
	})

	t.Run("encrypts with certificate", func(t *testing.T) {
		got, err := ResolveSecurityCredential("", "pw", path)
		require.NoError(t, err)

		ciphertext, _ := base64.StdEncoding.DecodeString(got)
		plain, err := rsa.DecryptPKCS1v15(rand.Reader, key, ciphertext)
		require.NoError(t, err)
		assert.Equal(t, "pw", string(plain))
	})

	t.Run("nothing configured", func(t *testing.T) {
		got, err := ResolveSecurityCredential("", "", "")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ResolveSecurityCredential("", "pw", filepath.Join(t.TempDir(), "missing.cer"))
		assert.Error(t, err)
	})
}
