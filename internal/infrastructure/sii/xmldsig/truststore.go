// Carga de certificados raíz de confianza desde un bundle PEM o un .p12 (PKCS#12).

package xmldsig

import (
	"bytes"
	"crypto/x509"
	"fmt"
	"os"

	"golang.org/x/crypto/pkcs12"

	"github.com/secretline/lib-cl-sii-go/internal/domain"
)

// TrustStore agrupa las raíces contra las que se valida la cadena del certificado firmante.
type TrustStore struct {
	Pool  *x509.CertPool
	Certs []*x509.Certificate
}

// NewTrustStore arma un TrustStore a partir de certificados ya parseados.
func NewTrustStore(certs ...*x509.Certificate) *TrustStore {
	pool := x509.NewCertPool()
	for _, c := range certs {
		pool.AddCert(c)
	}
	return &TrustStore{Pool: pool, Certs: certs}
}

// LoadTrustStore lee path como bundle PEM; si no contiene bloques PEM lo intenta como
// PKCS#12 con password (puede ser vacío).
func LoadTrustStore(path, password string) (*TrustStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("leer almacén de confianza: %w", err)
	}
	if bytes.Contains(data, []byte("-----BEGIN")) {
		certs, err := ParseCertificates(data)
		if err != nil {
			return nil, err
		}
		return NewTrustStore(certs...), nil
	}
	certs, err := certsFromP12(data, password)
	if err != nil {
		return nil, err
	}
	return NewTrustStore(certs...), nil
}

// certsFromP12 extrae todos los certificados del contenedor; pkcs12.Decode devuelve uno
// solo, por eso se pasa por ToPEM.
func certsFromP12(data []byte, password string) ([]*x509.Certificate, error) {
	blocks, err := pkcs12.ToPEM(data, password)
	if err != nil {
		return nil, &domain.CertificateParseError{Err: fmt.Errorf("decodificar p12: %w", err)}
	}
	var certs []*x509.Certificate
	for _, b := range blocks {
		if b.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(b.Bytes)
		if err != nil {
			return nil, &domain.CertificateParseError{Err: err}
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, &domain.CertificateParseError{Err: ErrNoCertificate}
	}
	return certs, nil
}
