package xmldsig_test

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secretline/lib-cl-sii-go/internal/domain"
	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/sii/xmldsig"
	"github.com/secretline/lib-cl-sii-go/internal/siitest"
)

// ── Certificados ────────────────────────────────────────────────────────────

func TestParseCertificate_PEMyBase64(t *testing.T) {
	pki := siitest.DefaultPKI(t)

	fromPEM, err := xmldsig.ParseCertificate(string(pki.Leaf.PEM()))
	require.NoError(t, err)
	assert.True(t, fromPEM.Equal(pki.Leaf.Cert))

	// Base64 partido en líneas, como en ds:X509Certificate.
	b64 := base64.StdEncoding.EncodeToString(pki.Leaf.Cert.Raw)
	wrapped := b64[:64] + "\n" + b64[64:128] + "\r\n  " + b64[128:]
	fromB64, err := xmldsig.ParseCertificate(wrapped)
	require.NoError(t, err)
	assert.True(t, fromB64.Equal(pki.Leaf.Cert))
}

func TestParseCertificate_Invalido(t *testing.T) {
	for name, input := range map[string]string{
		"vacío":       "  ",
		"no base64":   "%%%",
		"no DER":      base64.StdEncoding.EncodeToString([]byte("hola")),
		"PEM sin DER": "-----BEGIN CERTIFICATE-----\n-----END CERTIFICATE-----\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := xmldsig.ParseCertificate(input)
			var cErr *domain.CertificateParseError
			assert.True(t, errors.As(err, &cErr), "se esperaba CertificateParseError, se obtuvo %v", err)
			assert.ErrorIs(t, err, domain.ErrCertificateParse)
		})
	}
}

func TestIsSelfSigned(t *testing.T) {
	pki := siitest.DefaultPKI(t)
	assert.True(t, xmldsig.IsSelfSigned(pki.SelfSigned.Cert))
	assert.True(t, xmldsig.IsSelfSigned(pki.Root.Cert))
	assert.False(t, xmldsig.IsSelfSigned(pki.Leaf.Cert))
}

func TestCheckKeyUsage(t *testing.T) {
	pki := siitest.DefaultPKI(t)
	assert.NoError(t, xmldsig.CheckKeyUsage(pki.Leaf.Cert))
	assert.ErrorIs(t, xmldsig.CheckKeyUsage(pki.Encipherment.Cert), xmldsig.ErrKeyUsage)
}

func TestLoadTrustStore_PEM(t *testing.T) {
	pki := siitest.DefaultPKI(t)
	path := filepath.Join(t.TempDir(), "raices.pem")
	bundle := append(pki.Root.PEM(), pki.SelfSigned.PEM()...)
	require.NoError(t, os.WriteFile(path, bundle, 0o600))

	store, err := xmldsig.LoadTrustStore(path, "")
	require.NoError(t, err)
	assert.Len(t, store.Certs, 2)
}

func TestLoadTrustStore_Errores(t *testing.T) {
	_, err := xmldsig.LoadTrustStore(filepath.Join(t.TempDir(), "no-existe.pem"), "")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "basura.p12")
	require.NoError(t, os.WriteFile(path, []byte("no es pkcs12"), 0o600))
	_, err = xmldsig.LoadTrustStore(path, "")
	assert.ErrorIs(t, err, domain.ErrCertificateParse)
}

// ── Algoritmos y firmas ─────────────────────────────────────────────────────

func TestLookupDigest(t *testing.T) {
	h, err := xmldsig.LookupDigest(xmldsig.DigestSHA1)
	require.NoError(t, err)
	assert.Equal(t, crypto.SHA1, h)

	// Variante no estándar emitida por algunos firmadores.
	h, err = xmldsig.LookupDigest("http://www.w3.org/2000/09/xmldsig#sha256")
	require.NoError(t, err)
	assert.Equal(t, crypto.SHA256, h)

	_, err = xmldsig.LookupDigest("http://www.w3.org/2001/04/xmldsig-more#md5")
	assert.ErrorIs(t, err, domain.ErrUnsupportedAlgorithm)
}

func TestVerifySignature_ECDSA(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	data := []byte("<SignedInfo></SignedInfo>")
	digest := sha256.Sum256(data)
	method, err := xmldsig.LookupSignatureMethod(xmldsig.SignatureECDSASHA256)
	require.NoError(t, err)

	r, s, err := ecdsa.Sign(rand.Reader, key, digest[:])
	require.NoError(t, err)
	raw := make([]byte, 64)
	r.FillBytes(raw[:32])
	s.FillBytes(raw[32:])

	ok, err := xmldsig.VerifySignature(data, raw, &key.PublicKey, method)
	require.NoError(t, err)
	assert.True(t, ok, "formato r||s de XML-DSig")

	der, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	require.NoError(t, err)
	ok, err = xmldsig.VerifySignature(data, der, &key.PublicKey, method)
	require.NoError(t, err)
	assert.True(t, ok, "formato DER")

	ok, err = xmldsig.VerifySignature([]byte("otro"), raw, &key.PublicKey, method)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifySignature_LlaveIncompatible(t *testing.T) {
	pki := siitest.DefaultPKI(t)
	method, err := xmldsig.LookupSignatureMethod(xmldsig.SignatureECDSASHA256)
	require.NoError(t, err)
	_, err = xmldsig.VerifySignature([]byte("x"), []byte("y"), &pki.Leaf.Key.PublicKey, method)
	assert.ErrorIs(t, err, xmldsig.ErrKeyMismatch)
}
