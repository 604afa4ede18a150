package connection

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// ClientMetadata holds the client's identity and credentials. It is immutable
// for the lifetime of a connection; the URI is derived from the common name
// of the client certificate.
type ClientMetadata struct {
	ClientType string
	CACertPath string
	CertPath   string
	KeyPath    string
	Uri        string
}

func NewClientMetadata(clientType string, caCertPath string, certPath string, keyPath string) (*ClientMetadata, error) {
	commonName, err := certCommonName(certPath)
	if err != nil {
		return nil, err
	}

	return &ClientMetadata{
		ClientType: clientType,
		CACertPath: caCertPath,
		CertPath:   certPath,
		KeyPath:    keyPath,
		Uri:        fmt.Sprintf("cth://%s/%s", commonName, clientType),
	}, nil
}

func certCommonName(certPath string) (string, error) {
	pemBytes, err := os.ReadFile(certPath)
	if err != nil {
		return "", fmt.Errorf("failed to read client certificate %s: %w", certPath, err)
	}

	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return "", fmt.Errorf("client certificate %s is not PEM encoded", certPath)
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse client certificate %s: %w", certPath, err)
	}

	return cert.Subject.CommonName, nil
}

// tlsConfig builds the mutual-TLS configuration for wss connections: our
// client keypair plus the broker's CA as the only trusted root.
func (m *ClientMetadata) tlsConfig() (*tls.Config, error) {
	keyPair, err := tls.LoadX509KeyPair(m.CertPath, m.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load client keypair: %w", err)
	}

	caBytes, err := os.ReadFile(m.CACertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate %s: %w", m.CACertPath, err)
	}

	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("no CA certificates found in %s", m.CACertPath)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{keyPair},
		RootCAs:      caPool,
	}, nil
}
