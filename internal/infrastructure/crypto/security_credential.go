package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// CredentialEncrypter produces the gateway's SecurityCredential: the initiator
// password encrypted with the gateway's public certificate.
type CredentialEncrypter interface {
	Encrypt(initiatorPassword string) (string, error)
}

type RSACredentialEncrypter struct {
	key *rsa.PublicKey
}

// NewRSACredentialEncrypter parses a PEM or DER encoded X.509 certificate.
func NewRSACredentialEncrypter(certData []byte) (*RSACredentialEncrypter, error) {
	der := certData
	if block, _ := pem.Decode(certData); block != nil {
		der = block.Bytes
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse gateway certificate: %w", err)
	}
	key, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("gateway certificate does not carry an RSA key")
	}
	return &RSACredentialEncrypter{key: key}, nil
}

func NewRSACredentialEncrypterFromFile(path string) (*RSACredentialEncrypter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway certificate: %w", err)
	}
	return NewRSACredentialEncrypter(data)
}

func (e *RSACredentialEncrypter) Encrypt(initiatorPassword string) (string, error) {
	if initiatorPassword == "" {
		return "", errors.New("initiator password is empty")
	}
	ciphertext, err := rsa.EncryptPKCS1v15(rand.Reader, e.key, []byte(initiatorPassword))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt initiator password: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// ResolveSecurityCredential returns the configured credential, or encrypts the
// initiator password with the certificate at certPath when none is configured.
func ResolveSecurityCredential(credential, initiatorPassword, certPath string) (string, error) {
	if credential != "" {
		return credential, nil
	}
	if certPath == "" || initiatorPassword == "" {
		return "", nil
	}
	enc, err := NewRSACredentialEncrypterFromFile(certPath)
	if err != nil {
		return "", err
	}
	return enc.Encrypt(initiatorPassword)
}
