// Package siitest arma material de prueba para el pipeline: una PKI pequeña, DTE y AEC
// con valores conocidos y un firmador XML-DSig al estilo del SII.
package siitest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"
)

// Identity es un certificado con su llave privada.
type Identity struct {
	Key  *rsa.PrivateKey
	Cert *x509.Certificate
}

// PEM devuelve el certificado en PEM.
func (i Identity) PEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: i.Cert.Raw})
}

// PKI de prueba. Leaf y Expired los emite Root; SelfSigned se emite a sí mismo.
// Todas las vigencias rodean (o excluyen, en Expired) el TmstFirma de los fixtures.
type PKI struct {
	Root         Identity
	Leaf         Identity
	Expired      Identity
	SelfSigned   Identity
	Encipherment Identity // emitido por Root, sin digitalSignature
}

var (
	pkiOnce sync.Once
	pkiVal  *PKI
	pkiErr  error
)

// DefaultPKI genera la PKI una vez por binario de prueba.
func DefaultPKI(t testing.TB) *PKI {
	t.Helper()
	pkiOnce.Do(func() { pkiVal, pkiErr = NewPKI() })
	if pkiErr != nil {
		t.Fatalf("siitest: generar PKI: %v", pkiErr)
	}
	return pkiVal
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func NewPKI() (*PKI, error) {
	root, err := newIdentity(certSpec{
		cn: "Autoridad Certificadora de Prueba", serial: 1,
		from: date(2015, 1, 1), to: date(2040, 1, 1), ca: true,
		usage: x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}, nil)
	if err != nil {
		return nil, err
	}
	leaf, err := newIdentity(certSpec{
		cn: "Firmante de Prueba 76354771-K", serial: 2,
		from: date(2018, 1, 1), to: date(2030, 1, 1),
		usage: x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
	}, &root)
	if err != nil {
		return nil, err
	}
	expired, err := newIdentity(certSpec{
		cn: "Firmante Vencido", serial: 3,
		from: date(2015, 1, 1), to: date(2018, 6, 1),
		usage: x509.KeyUsageDigitalSignature,
	}, &root)
	if err != nil {
		return nil, err
	}
	self, err := newIdentity(certSpec{
		cn: "Firmante Autofirmado", serial: 4,
		from: date(2018, 1, 1), to: date(2030, 1, 1),
		usage: x509.KeyUsageDigitalSignature,
	}, nil)
	if err != nil {
		return nil, err
	}
	enc, err := newIdentity(certSpec{
		cn: "Certificado de Cifrado", serial: 5,
		from: date(2018, 1, 1), to: date(2030, 1, 1),
		usage: x509.KeyUsageKeyEncipherment,
	}, &root)
	if err != nil {
		return nil, err
	}
	return &PKI{Root: root, Leaf: leaf, Expired: expired, SelfSigned: self, Encipherment: enc}, nil
}

type certSpec struct {
	cn       string
	serial   int64
	from, to time.Time
	ca       bool
	usage    x509.KeyUsage
}

// newIdentity emite un certificado RSA-SHA256. issuer nil: autofirmado.
func newIdentity(spec certSpec, issuer *Identity) (Identity, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return Identity{}, fmt.Errorf("generar llave: %w", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(spec.serial),
		Subject:               pkix.Name{CommonName: spec.cn, Country: []string{"CL"}, Organization: []string{"Pruebas"}},
		NotBefore:             spec.from,
		NotAfter:              spec.to,
		KeyUsage:              spec.usage,
		BasicConstraintsValid: true,
		IsCA:                  spec.ca,
		SignatureAlgorithm:    x509.SHA256WithRSA,
	}
	if !spec.ca {
		tmpl.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageEmailProtection}
	}
	parent, signer := tmpl, key
	if issuer != nil {
		parent, signer = issuer.Cert, issuer.Key
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, &key.PublicKey, signer)
	if err != nil {
		return Identity{}, fmt.Errorf("emitir %q: %w", spec.cn, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Key: key, Cert: cert}, nil
}
