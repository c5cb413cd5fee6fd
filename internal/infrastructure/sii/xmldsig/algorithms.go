// Algoritmos XML-DSig soportados por el verificador de firmas de DTE.

package xmldsig

import (
	"crypto"
	"fmt"

	dsig "github.com/russellhaering/goxmldsig"

	"github.com/secretline/lib-cl-sii-go/internal/domain"
	"github.com/secretline/lib-cl-sii-go/pkg/sii"
)

// Namespace y transformaciones.
const (
	Namespace          = sii.NamespaceDSig
	TransformEnveloped = string(dsig.EnvelopedSignatureAltorithmId)
)

// Métodos de digest.
const (
	DigestSHA1   = "http://www.w3.org/2000/09/xmldsig#sha1"
	DigestSHA256 = "http://www.w3.org/2001/04/xmlenc#sha256"
	DigestSHA384 = "http://www.w3.org/2001/04/xmldsig-more#sha384"
	DigestSHA512 = "http://www.w3.org/2001/04/xmlenc#sha512"

	// Variante no estándar que emiten algunos firmadores; equivale a SHA-256.
	digestSHA256Alias = "http://www.w3.org/2000/09/xmldsig#sha256"
)

// Métodos de firma.
const (
	SignatureRSASHA1     = dsig.RSASHA1SignatureMethod
	SignatureRSASHA256   = dsig.RSASHA256SignatureMethod
	SignatureRSASHA384   = dsig.RSASHA384SignatureMethod
	SignatureRSASHA512   = dsig.RSASHA512SignatureMethod
	SignatureECDSASHA1   = dsig.ECDSASHA1SignatureMethod
	SignatureECDSASHA256 = dsig.ECDSASHA256SignatureMethod
	SignatureECDSASHA384 = dsig.ECDSASHA384SignatureMethod
	SignatureECDSASHA512 = dsig.ECDSASHA512SignatureMethod
)

// KeyType es la familia de llave pública que exige un método de firma.
type KeyType string

const (
	KeyRSA   KeyType = "RSA"
	KeyECDSA KeyType = "ECDSA"
)

// SignatureMethod describe un método de firma: hash y tipo de llave.
type SignatureMethod struct {
	URI  string
	Hash crypto.Hash
	Key  KeyType
}

var digestMethods = map[string]crypto.Hash{
	DigestSHA1:        crypto.SHA1,
	DigestSHA256:      crypto.SHA256,
	DigestSHA384:      crypto.SHA384,
	DigestSHA512:      crypto.SHA512,
	digestSHA256Alias: crypto.SHA256,
}

var signatureMethods = map[string]SignatureMethod{
	SignatureRSASHA1:     {SignatureRSASHA1, crypto.SHA1, KeyRSA},
	SignatureRSASHA256:   {SignatureRSASHA256, crypto.SHA256, KeyRSA},
	SignatureRSASHA384:   {SignatureRSASHA384, crypto.SHA384, KeyRSA},
	SignatureRSASHA512:   {SignatureRSASHA512, crypto.SHA512, KeyRSA},
	SignatureECDSASHA1:   {SignatureECDSASHA1, crypto.SHA1, KeyECDSA},
	SignatureECDSASHA256: {SignatureECDSASHA256, crypto.SHA256, KeyECDSA},
	SignatureECDSASHA384: {SignatureECDSASHA384, crypto.SHA384, KeyECDSA},
	SignatureECDSASHA512: {SignatureECDSASHA512, crypto.SHA512, KeyECDSA},
}

// LookupDigest resuelve el URI de DigestMethod.
func LookupDigest(uri string) (crypto.Hash, error) {
	h, ok := digestMethods[uri]
	if !ok {
		return 0, fmt.Errorf("%w: digest %q", domain.ErrUnsupportedAlgorithm, uri)
	}
	return h, nil
}

// DigestURI es el inverso de LookupDigest (URI estándar).
func DigestURI(h crypto.Hash) (string, error) {
	switch h {
	case crypto.SHA1:
		return DigestSHA1, nil
	case crypto.SHA256:
		return DigestSHA256, nil
	case crypto.SHA384:
		return DigestSHA384, nil
	case crypto.SHA512:
		return DigestSHA512, nil
	}
	return "", fmt.Errorf("%w: hash %v", domain.ErrUnsupportedAlgorithm, h)
}

// LookupSignatureMethod resuelve el URI de SignatureMethod.
func LookupSignatureMethod(uri string) (SignatureMethod, error) {
	m, ok := signatureMethods[uri]
	if !ok {
		return SignatureMethod{}, fmt.Errorf("%w: firma %q", domain.ErrUnsupportedAlgorithm, uri)
	}
	return m, nil
}
