// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package tls

import (
	cryptotls "crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursevoice/coursevoice/pkg/errutil"
)

func TestGenerateCA(t *testing.T) {
	ca, err := GenerateCA("dev")
	require.NoError(t, err)

	assert.True(t, ca.Certificate.IsCA)
	assert.Equal(t, "CourseVoice CA dev", ca.Certificate.Subject.CommonName)
	assert.Equal(t, []string{"CourseVoice"}, ca.Certificate.Subject.Organization)
	assert.NotZero(t, ca.Certificate.KeyUsage&x509.KeyUsageCertSign)
}

func TestGenerateServerCertSplitsHosts(t *testing.T) {
	ca, err := GenerateCA("dev")
	require.NoError(t, err)

	server, err := GenerateServerCert(ca, []string{"api.coursevoice.test", "10.0.0.5"})
	require.NoError(t, err)

	assert.Equal(t, "api.coursevoice.test", server.Certificate.Subject.CommonName)
	assert.Equal(t, []string{"api.coursevoice.test"}, server.Certificate.DNSNames)
	require.Len(t, server.Certificate.IPAddresses, 1)
	assert.True(t, server.Certificate.IPAddresses[0].Equal(net.ParseIP("10.0.0.5")))
	assert.Equal(t, []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}, server.Certificate.ExtKeyUsage)
}

func TestGenerateServerCertDefaultsToLocalhost(t *testing.T) {
	ca, err := GenerateCA("dev")
	require.NoError(t, err)

	server, err := GenerateServerCert(ca, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost"}, server.Certificate.DNSNames)
	assert.Len(t, server.Certificate.IPAddresses, 2)
}

func TestServerCertVerifiesAgainstCA(t *testing.T) {
	ca, err := GenerateCA("dev")
	require.NoError(t, err)
	server, err := GenerateServerCert(ca, nil)
	require.NoError(t, err)

	roots := x509.NewCertPool()
	roots.AddCert(ca.Certificate)
	_, err = server.Certificate.Verify(x509.VerifyOptions{
		Roots:     roots,
		DNSName:   "localhost",
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
	assert.NoError(t, err)
}

func TestSaveAndLoadCA(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")
	ca, err := GenerateCA("dev")
	require.NoError(t, err)

	require.NoError(t, SaveCertificates(dir, ca, nil))

	info, err := os.Stat(filepath.Join(dir, CAKeyFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	_, err = os.Stat(filepath.Join(dir, ServerFile))
	assert.True(t, errors.Is(err, os.ErrNotExist), "server pair written without a server cert")

	loaded, err := LoadCA(dir)
	require.NoError(t, err)
	assert.True(t, loaded.Certificate.Equal(ca.Certificate))
	assert.True(t, loaded.PrivateKey.Equal(ca.PrivateKey))
}

func TestLoadCAMissing(t *testing.T) {
	_, err := LoadCA(t.TempDir())

	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	errutil.AssertErrorCode(t, err, "TLS_LOAD_FAILED")
}

func TestLoadCARejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, CAFile), []byte("not pem"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, CAKeyFile), []byte("not pem"), 0o600))

	_, err := LoadCA(dir)

	errutil.AssertErrorCode(t, err, "TLS_LOAD_FAILED")
	errutil.AssertErrorContext(t, err, "file", CAFile)
}

func TestServerConfig(t *testing.T) {
	dir := t.TempDir()
	ca, err := GenerateCA("dev")
	require.NoError(t, err)
	server, err := GenerateServerCert(ca, nil)
	require.NoError(t, err)
	require.NoError(t, SaveCertificates(dir, ca, server))

	cfg, err := ServerConfig(filepath.Join(dir, ServerFile), filepath.Join(dir, ServerKeyFile))
	require.NoError(t, err)

	assert.Equal(t, uint16(cryptotls.VersionTLS12), cfg.MinVersion)
	require.Len(t, cfg.Certificates, 1)
}

func TestServerConfigMissingFiles(t *testing.T) {
	_, err := ServerConfig("/nonexistent/server.crt", "/nonexistent/server.key")

	errutil.AssertErrorCode(t, err, "TLS_LOAD_FAILED")
	errutil.AssertErrorContext(t, err, "cert_file", "/nonexistent/server.crt")
}
