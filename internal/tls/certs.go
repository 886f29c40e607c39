// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

// Package tls generates a local certificate authority and API server
// certificate for development, and loads server key pairs for HTTPS.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptotls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/oops"
)

// File names inside a certificates directory.
const (
	CAFile         = "root-ca.crt"
	CAKeyFile      = "root-ca.key"
	ServerFile     = "server.crt"
	ServerKeyFile  = "server.key"
	organization   = "CourseVoice"
	caValidity     = 10 * 365 * 24 * time.Hour
	serverValidity = 365 * 24 * time.Hour
)

// DefaultHosts are the SANs used when no hosts are given.
var DefaultHosts = []string{"localhost", "127.0.0.1", "::1"}

// CA holds a certificate authority certificate and private key.
type CA struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// ServerCert holds a server certificate and private key.
type ServerCert struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// GenerateCA creates a root CA whose common name is "CourseVoice CA <name>".
func GenerateCA(name string) (*CA, error) {
	key, serial, err := newKeyAndSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{organization},
			CommonName:   organization + " CA " + name,
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(caValidity),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		MaxPathLenZero:        true,
	}

	cert, err := createCertificate(template, template, &key.PublicKey, key)
	if err != nil {
		return nil, oops.Code("TLS_CA_CREATE_FAILED").Wrap(err)
	}
	return &CA{Certificate: cert, PrivateKey: key}, nil
}

// GenerateServerCert creates a server certificate signed by ca. Each host
// becomes an IP or DNS SAN; an empty list means DefaultHosts. The first host
// is also the common name.
func GenerateServerCert(ca *CA, hosts []string) (*ServerCert, error) {
	if len(hosts) == 0 {
		hosts = DefaultHosts
	}
	key, serial, err := newKeyAndSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{organization},
			CommonName:   hosts[0],
		},
		NotBefore:   now.Add(-time.Minute),
		NotAfter:    now.Add(serverValidity),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	cert, err := createCertificate(template, ca.Certificate, &key.PublicKey, ca.PrivateKey)
	if err != nil {
		return nil, oops.Code("TLS_SERVER_CERT_FAILED").With("hosts", hosts).Wrap(err)
	}
	return &ServerCert{Certificate: cert, PrivateKey: key}, nil
}

// SaveCertificates writes the CA and, when non-nil, the server pair into dir.
func SaveCertificates(dir string, ca *CA, server *ServerCert) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("dir", dir).Wrap(err)
	}
	if err := savePair(dir, CAFile, CAKeyFile, ca.Certificate, ca.PrivateKey); err != nil {
		return err
	}
	if server != nil {
		return savePair(dir, ServerFile, ServerKeyFile, server.Certificate, server.PrivateKey)
	}
	return nil
}

// LoadCA reads the CA written by SaveCertificates. A missing file surfaces
// os.ErrNotExist through errors.Is.
func LoadCA(dir string) (*CA, error) {
	certPEM, err := os.ReadFile(filepath.Join(dir, CAFile)) //nolint:gosec // operator-supplied directory
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("file", CAFile).Wrap(err)
	}
	keyPEM, err := os.ReadFile(filepath.Join(dir, CAKeyFile)) //nolint:gosec // operator-supplied directory
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("file", CAKeyFile).Wrap(err)
	}

	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, oops.Code("TLS_LOAD_FAILED").With("file", CAFile).Errorf("no certificate PEM block")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("file", CAFile).Wrap(err)
	}

	block, _ = pem.Decode(keyPEM)
	if block == nil || block.Type != "EC PRIVATE KEY" {
		return nil, oops.Code("TLS_LOAD_FAILED").With("file", CAKeyFile).Errorf("no EC private key PEM block")
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("file", CAKeyFile).Wrap(err)
	}

	return &CA{Certificate: cert, PrivateKey: key}, nil
}

// ServerConfig loads a PEM key pair into a TLS 1.2+ server configuration.
func ServerConfig(certFile, keyFile string) (*cryptotls.Config, error) {
	pair, err := cryptotls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").
			With("cert_file", certFile).
			With("key_file", keyFile).
			Wrap(err)
	}
	return &cryptotls.Config{
		Certificates: []cryptotls.Certificate{pair},
		MinVersion:   cryptotls.VersionTLS12,
	}, nil
}

func newKeyAndSerial() (*ecdsa.PrivateKey, *big.Int, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, oops.Code("TLS_KEY_FAILED").Wrap(err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, oops.Code("TLS_KEY_FAILED").Wrap(err)
	}
	return key, serial, nil
}

func createCertificate(template, parent *x509.Certificate, pub *ecdsa.PublicKey, signer *ecdsa.PrivateKey) (*x509.Certificate, error) {
	der, err := x509.CreateCertificate(rand.Reader, template, parent, pub, signer)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers attach the code
	}
	return x509.ParseCertificate(der) //nolint:wrapcheck // callers attach the code
}

func savePair(dir, certName, keyName string, cert *x509.Certificate, key *ecdsa.PrivateKey) error {
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("file", keyName).Wrap(err)
	}
	if err := writePEM(filepath.Join(dir, certName), "CERTIFICATE", cert.Raw); err != nil {
		return err
	}
	return writePEM(filepath.Join(dir, keyName), "EC PRIVATE KEY", keyDER)
}

func writePEM(path, blockType string, der []byte) error {
	f, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("file", path).Wrap(err)
	}
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		_ = f.Close()
		return oops.Code("TLS_SAVE_FAILED").With("file", path).Wrap(err)
	}
	if err := f.Close(); err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("file", path).Wrap(err)
	}
	return nil
}
