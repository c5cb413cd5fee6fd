package xmldsig

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/secretline/lib-cl-sii-go/internal/domain"
)

var (
	ErrKeyUsage      = errors.New("el uso de llave del certificado no permite firmar")
	ErrKeyMismatch   = errors.New("la llave pública no corresponde al método de firma")
	ErrNoCertificate = errors.New("no se encontraron certificados")
)

// Funciones puras: no guardan estado y se pueden usar concurrentemente.

// ParseCertificate acepta un certificado en PEM o el base64 del DER (como viene en
// ds:X509Certificate, con o sin saltos de línea).
func ParseCertificate(pemOrBase64 string) (*x509.Certificate, error) {
	var der []byte
	if strings.Contains(pemOrBase64, "-----BEGIN") {
		block, _ := pem.Decode([]byte(pemOrBase64))
		if block == nil || block.Type != "CERTIFICATE" {
			return nil, &domain.CertificateParseError{Err: errors.New("bloque PEM CERTIFICATE inválido")}
		}
		der = block.Bytes
	} else {
		compact := strings.Join(strings.Fields(pemOrBase64), "")
		if compact == "" {
			return nil, &domain.CertificateParseError{Err: ErrNoCertificate}
		}
		b, err := base64.StdEncoding.DecodeString(compact)
		if err != nil {
			return nil, &domain.CertificateParseError{Err: fmt.Errorf("base64: %w", err)}
		}
		der = b
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, &domain.CertificateParseError{Err: err}
	}
	return cert, nil
}

// ParseCertificates lee todos los bloques CERTIFICATE de un bundle PEM.
func ParseCertificates(pemData []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := pemData
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
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

// Digest calcula el hash de data con el algoritmo dado.
func Digest(data []byte, alg crypto.Hash) ([]byte, error) {
	if !alg.Available() {
		return nil, fmt.Errorf("%w: hash %v", domain.ErrUnsupportedAlgorithm, alg)
	}
	h := alg.New()
	h.Write(data)
	return h.Sum(nil), nil
}

// VerifySignature verifica sig sobre data. Devuelve (false, nil) cuando la firma
// simplemente no corresponde y error cuando no se puede evaluar (llave o método
// incompatibles). Para ECDSA acepta r||s (formato XML-DSig) y DER.
func VerifySignature(data, sig []byte, pub crypto.PublicKey, method SignatureMethod) (bool, error) {
	digest, err := Digest(data, method.Hash)
	if err != nil {
		return false, err
	}
	switch key := pub.(type) {
	case *rsa.PublicKey:
		if method.Key != KeyRSA {
			return false, fmt.Errorf("%w: llave RSA con %s", ErrKeyMismatch, method.URI)
		}
		return rsa.VerifyPKCS1v15(key, method.Hash, digest, sig) == nil, nil
	case *ecdsa.PublicKey:
		if method.Key != KeyECDSA {
			return false, fmt.Errorf("%w: llave ECDSA con %s", ErrKeyMismatch, method.URI)
		}
		size := (key.Curve.Params().BitSize + 7) / 8
		if len(sig) == 2*size {
			r := new(big.Int).SetBytes(sig[:size])
			s := new(big.Int).SetBytes(sig[size:])
			return ecdsa.Verify(key, digest, r, s), nil
		}
		return ecdsa.VerifyASN1(key, digest, sig), nil
	}
	return false, fmt.Errorf("%w: llave %T", domain.ErrUnsupportedAlgorithm, pub)
}

// CheckKeyUsage exige digitalSignature o nonRepudiation cuando el certificado declara
// KeyUsage. Un certificado sin la extensión no se rechaza.
func CheckKeyUsage(cert *x509.Certificate) error {
	if cert.KeyUsage == 0 {
		return nil
	}
	if cert.KeyUsage&(x509.KeyUsageDigitalSignature|x509.KeyUsageContentCommitment) == 0 {
		return fmt.Errorf("%w (key usage %b)", ErrKeyUsage, cert.KeyUsage)
	}
	return nil
}

// IsSelfSigned indica si el certificado está emitido por sí mismo y su firma lo confirma.
func IsSelfSigned(cert *x509.Certificate) bool {
	if !bytes.Equal(cert.RawIssuer, cert.RawSubject) {
		return false
	}
	return cert.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature) == nil
}
