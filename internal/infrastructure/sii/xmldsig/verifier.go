// Verificador de firmas XML-DSig de DTE y AEC. Lee algoritmos y transformaciones desde
// el propio bloque ds:Signature y entrega un veredicto con todas las fallas encontradas.

package xmldsig

import (
	"bytes"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/beevik/etree"

	"github.com/secretline/lib-cl-sii-go/internal/domain"
	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/xmlutil"
	"github.com/secretline/lib-cl-sii-go/pkg/sii"
)

// Reason es el motivo de una falla de firma. Conjunto cerrado.
type Reason string

const (
	ReasonDigestMismatch        Reason = "DigestMismatch"
	ReasonSignatureMismatch     Reason = "SignatureMismatch"
	ReasonCertificateInvalid    Reason = "CertificateInvalid"
	ReasonCertificateParseError Reason = "CertificateParseError"
	ReasonSignatureMalformed    Reason = "SignatureMalformed"
	ReasonSignatureNotFound     Reason = "SignatureNotFound"
)

const exclusiveC14NNamespace = "http://www.w3.org/2001/10/xml-exc-c14n#"

// Elementos que fijan el instante de firma declarado por el documento.
var signingTimeTags = map[string]bool{"TmstFirma": true, "TmstFirmaEnvio": true, "TmstCesion": true}

type Failure struct {
	Reason Reason `json:"reason"`
	Detail string `json:"detail"`
}

// CertificateInfo resume el certificado firmante.
type CertificateInfo struct {
	Subject           string    `json:"subject"`
	Issuer            string    `json:"issuer"`
	SerialNumber      string    `json:"serial_number"`
	NotBefore         time.Time `json:"not_before"`
	NotAfter          time.Time `json:"not_after"`
	SelfSigned        bool      `json:"self_signed"`
	FingerprintSHA256 string    `json:"fingerprint_sha256"`
}

// Verdict es el resultado de verificar un bloque ds:Signature. Un veredicto inválido
// siempre trae Reason, que es la primera falla en orden de pasos.
type Verdict struct {
	Valid                  bool             `json:"valid"`
	Reason                 Reason           `json:"reason,omitempty"`
	Failures               []Failure        `json:"failures,omitempty"`
	SignaturePath          string           `json:"signature_path"`
	ReferenceURI           string           `json:"reference_uri"`
	CanonicalizationMethod string           `json:"canonicalization_method,omitempty"`
	SignatureMethod        string           `json:"signature_method,omitempty"`
	DigestMethod           string           `json:"digest_method,omitempty"`
	SigningTime            *time.Time       `json:"signing_time,omitempty"`
	Certificate            *CertificateInfo `json:"certificate,omitempty"`
}

// NotFoundVerdict es el veredicto con que el pipeline representa la ausencia de firma.
func NotFoundVerdict(err *domain.SignatureNotFoundError) Verdict {
	return Verdict{
		Reason:        ReasonSignatureNotFound,
		Failures:      []Failure{{Reason: ReasonSignatureNotFound, Detail: err.Error()}},
		SignaturePath: err.Path + "/Signature",
	}
}

func (v *Verdict) fail(reason Reason, format string, args ...any) {
	v.Failures = append(v.Failures, Failure{Reason: reason, Detail: fmt.Sprintf(format, args...)})
}

func (v *Verdict) finish() {
	v.Valid = len(v.Failures) == 0
	if !v.Valid {
		v.Reason = v.Failures[0].Reason
	}
}

// Options controla la política de certificados.
type Options struct {
	AllowSelfSigned bool
	// Roots nil omite la validación de cadena.
	Roots *TrustStore
	// Location para interpretar TmstFirma; por defecto America/Santiago.
	Location *time.Location
	// Now se usa cuando el documento no declara instante de firma.
	Now func() time.Time
}

// Verifier es inmutable y seguro para uso concurrente.
type Verifier struct {
	opts Options
}

var (
	santiagoOnce sync.Once
	santiagoLoc  *time.Location
)

func signingLocation() *time.Location {
	santiagoOnce.Do(func() {
		loc, err := time.LoadLocation(sii.SigningTimeZone)
		if err != nil {
			loc = time.UTC
		}
		santiagoLoc = loc
	})
	return santiagoLoc
}

func NewVerifier(opts Options) *Verifier {
	if opts.Location == nil {
		opts.Location = signingLocation()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Verifier{opts: opts}
}

// Verify verifica la ds:Signature hija de la raíz. Si no existe devuelve
// *domain.SignatureNotFoundError: la ausencia no es un veredicto inválido.
func (v *Verifier) Verify(doc *etree.Document) (Verdict, error) {
	root := doc.Root()
	if root == nil {
		return Verdict{}, &domain.SignatureNotFoundError{Path: "/"}
	}
	sig := xmlutil.FindChild(root, "Signature", Namespace)
	if sig == nil {
		return Verdict{}, &domain.SignatureNotFoundError{Path: xmlutil.Path(root)}
	}
	return v.VerifyElement(doc, sig), nil
}

// VerifyAll verifica todas las ds:Signature del documento en orden de documento
// (en un AEC: la del DTE cedido, las de cada cesión y la del AEC).
func (v *Verifier) VerifyAll(doc *etree.Document) ([]Verdict, error) {
	root := doc.Root()
	if root == nil {
		return nil, &domain.SignatureNotFoundError{Path: "/"}
	}
	sigs := xmlutil.FindDescendants(root, "Signature", Namespace)
	if len(sigs) == 0 {
		return nil, &domain.SignatureNotFoundError{Path: xmlutil.Path(root)}
	}
	out := make([]Verdict, 0, len(sigs))
	for _, sig := range sigs {
		out = append(out, v.VerifyElement(doc, sig))
	}
	return out, nil
}

// VerifyElement verifica un bloque ds:Signature concreto de doc.
func (v *Verifier) VerifyElement(doc *etree.Document, sig *etree.Element) (verdict Verdict) {
	verdict.SignaturePath = xmlutil.Path(sig)
	defer verdict.finish()

	signedInfo := xmlutil.FindChild(sig, "SignedInfo", Namespace)
	if signedInfo == nil {
		verdict.fail(ReasonSignatureMalformed, "sin SignedInfo")
		return verdict
	}

	// Paso 2: algoritmos declarados.
	c14nMethod, c14nPrefixes, c14nOK := readCanonicalizationMethod(signedInfo, &verdict)
	var method SignatureMethod
	methodOK := false
	if el := xmlutil.FindChild(signedInfo, "SignatureMethod", Namespace); el == nil {
		verdict.fail(ReasonSignatureMalformed, "sin SignatureMethod")
	} else {
		verdict.SignatureMethod = el.SelectAttrValue("Algorithm", "")
		m, err := LookupSignatureMethod(verdict.SignatureMethod)
		if err != nil {
			verdict.fail(ReasonSignatureMalformed, "%v", err)
		} else {
			method, methodOK = m, true
		}
	}

	// Paso 3: referencias y digest.
	refs := xmlutil.FindChildren(signedInfo, "Reference", Namespace)
	if len(refs) == 0 {
		verdict.fail(ReasonSignatureMalformed, "sin Reference")
	}
	var referenced *etree.Element
	for i, ref := range refs {
		target := v.checkReference(doc, sig, ref, &verdict)
		if i == 0 {
			referenced = target
		}
	}

	// Paso 4: certificado y SignatureValue.
	signatureValue, sigValueOK := readSignatureValue(sig, &verdict)
	cert, intermediates, certErr := readCertificates(sig)
	if certErr != nil {
		verdict.fail(ReasonCertificateParseError, "%v", certErr)
	} else if c14nOK && methodOK && sigValueOK {
		canonical, err := xmlutil.Canonicalize(signedInfo, c14nMethod, c14nPrefixes)
		if err != nil {
			verdict.fail(ReasonSignatureMalformed, "canonicalizar SignedInfo: %v", err)
		} else if ok, err := VerifySignature(canonical, signatureValue, cert.PublicKey, method); err != nil {
			verdict.fail(ReasonSignatureMismatch, "%v", err)
		} else if !ok {
			verdict.fail(ReasonSignatureMismatch, "SignatureValue no corresponde a SignedInfo con la llave del certificado")
		}
	}

	// Paso 5: política del certificado.
	if cert != nil {
		verdict.Certificate = describeCertificate(cert)
		signingTime := v.signingTime(referenced)
		verdict.SigningTime = &signingTime
		v.checkCertificate(cert, intermediates, signingTime, &verdict)
	}
	return verdict
}

func readCanonicalizationMethod(signedInfo *etree.Element, verdict *Verdict) (string, string, bool) {
	el := xmlutil.FindChild(signedInfo, "CanonicalizationMethod", Namespace)
	if el == nil {
		verdict.fail(ReasonSignatureMalformed, "sin CanonicalizationMethod")
		return "", "", false
	}
	m := el.SelectAttrValue("Algorithm", "")
	verdict.CanonicalizationMethod = m
	if !xmlutil.IsCanonicalizationMethod(m) {
		verdict.fail(ReasonSignatureMalformed, "%v: canonicalización %q", domain.ErrUnsupportedAlgorithm, m)
		return "", "", false
	}
	return m, inclusivePrefixes(el), true
}

func inclusivePrefixes(el *etree.Element) string {
	if inc := xmlutil.FindChild(el, "InclusiveNamespaces", exclusiveC14NNamespace); inc != nil {
		return inc.SelectAttrValue("PrefixList", "")
	}
	return ""
}

// checkReference resuelve la referencia, aplica las transformaciones declaradas y
// compara el digest. Devuelve el elemento referenciado (nil si no se pudo resolver).
func (v *Verifier) checkReference(doc *etree.Document, sig, ref *etree.Element, verdict *Verdict) *etree.Element {
	uriAttr := ref.SelectAttr("URI")
	if uriAttr == nil {
		verdict.fail(ReasonSignatureMalformed, "Reference sin atributo URI")
		return nil
	}
	uri := uriAttr.Value
	if verdict.ReferenceURI == "" {
		verdict.ReferenceURI = uri
	}

	var target *etree.Element
	switch {
	case uri == "":
		target = doc.Root()
	case strings.HasPrefix(uri, "#"):
		el, err := xmlutil.FindByID(doc.Root(), uri[1:])
		if err != nil {
			verdict.fail(ReasonSignatureMalformed, "Reference %q: %v", uri, err)
			return nil
		}
		target = el
	default:
		verdict.fail(ReasonSignatureMalformed, "Reference externa no soportada: %q", uri)
		return nil
	}

	enveloped := false
	c14nMethod, c14nPrefixes := xmlutil.C14N10Rec, ""
	if transforms := xmlutil.FindChild(ref, "Transforms", Namespace); transforms != nil {
		for _, t := range xmlutil.FindChildren(transforms, "Transform", Namespace) {
			alg := t.SelectAttrValue("Algorithm", "")
			switch {
			case alg == TransformEnveloped:
				enveloped = true
			case xmlutil.IsCanonicalizationMethod(alg):
				c14nMethod, c14nPrefixes = alg, inclusivePrefixes(t)
			default:
				verdict.fail(ReasonSignatureMalformed, "%v: transformación %q", domain.ErrUnsupportedAlgorithm, alg)
				return target
			}
		}
	}

	digestMethodEl := xmlutil.FindChild(ref, "DigestMethod", Namespace)
	if digestMethodEl == nil {
		verdict.fail(ReasonSignatureMalformed, "Reference %q sin DigestMethod", uri)
		return target
	}
	if verdict.DigestMethod == "" {
		verdict.DigestMethod = digestMethodEl.SelectAttrValue("Algorithm", "")
	}
	hash, err := LookupDigest(digestMethodEl.SelectAttrValue("Algorithm", ""))
	if err != nil {
		verdict.fail(ReasonSignatureMalformed, "%v", err)
		return target
	}
	digestValueEl := xmlutil.FindChild(ref, "DigestValue", Namespace)
	if digestValueEl == nil {
		verdict.fail(ReasonSignatureMalformed, "Reference %q sin DigestValue", uri)
		return target
	}
	expected, err := decodeBase64(digestValueEl.Text())
	if err != nil {
		verdict.fail(ReasonSignatureMalformed, "DigestValue: %v", err)
		return target
	}

	canonical, err := canonicalReferenced(doc, target, sig, enveloped, c14nMethod, c14nPrefixes)
	if err != nil {
		verdict.fail(ReasonSignatureMalformed, "canonicalizar %q: %v", uri, err)
		return target
	}
	actual, err := Digest(canonical, hash)
	if err != nil {
		verdict.fail(ReasonSignatureMalformed, "%v", err)
		return target
	}
	if !bytes.Equal(actual, expected) {
		verdict.fail(ReasonDigestMismatch, "Reference %q: digest calculado %s, declarado %s",
			uri, base64.StdEncoding.EncodeToString(actual), base64.StdEncoding.EncodeToString(expected))
	}
	return target
}

// canonicalReferenced canonicaliza el subárbol referenciado. Con la transformación
// enveloped-signature y la firma dentro del subárbol, trabaja sobre una copia del
// documento sin esa firma; el documento de entrada no se modifica.
func canonicalReferenced(doc *etree.Document, target, sig *etree.Element, enveloped bool, method, prefixes string) ([]byte, error) {
	if !enveloped {
		return xmlutil.Canonicalize(target, method, prefixes)
	}
	sigPath, inside := xmlutil.IndexPath(target, sig)
	if !inside {
		return xmlutil.Canonicalize(target, method, prefixes)
	}
	targetPath, ok := xmlutil.IndexPath(&doc.Element, target)
	if !ok {
		return nil, fmt.Errorf("referencia fuera del documento")
	}
	cp := xmlutil.CopyDocument(doc)
	cpTarget := xmlutil.FollowIndexPath(&cp.Element, targetPath)
	if cpTarget == nil {
		return nil, fmt.Errorf("no se pudo ubicar la referencia en la copia")
	}
	cpSig := xmlutil.FollowIndexPath(cpTarget, sigPath)
	if cpSig == nil || cpSig.Parent() == nil {
		return nil, fmt.Errorf("no se pudo ubicar la firma en la copia")
	}
	cpSig.Parent().RemoveChild(cpSig)
	return xmlutil.Canonicalize(cpTarget, method, prefixes)
}

func readSignatureValue(sig *etree.Element, verdict *Verdict) ([]byte, bool) {
	el := xmlutil.FindChild(sig, "SignatureValue", Namespace)
	if el == nil {
		verdict.fail(ReasonSignatureMalformed, "sin SignatureValue")
		return nil, false
	}
	b, err := decodeBase64(el.Text())
	if err != nil {
		verdict.fail(ReasonSignatureMalformed, "SignatureValue: %v", err)
		return nil, false
	}
	return b, true
}

// readCertificates toma el primer X509Certificate como firmante y el resto como
// intermedios para la validación de cadena.
func readCertificates(sig *etree.Element) (*x509.Certificate, []*x509.Certificate, error) {
	data := xmlutil.FindPath(sig, "KeyInfo/X509Data", Namespace)
	els := xmlutil.FindChildren(data, "X509Certificate", Namespace)
	if len(els) == 0 {
		return nil, nil, &domain.CertificateParseError{Err: fmt.Errorf("KeyInfo sin X509Certificate")}
	}
	var certs []*x509.Certificate
	for _, el := range els {
		c, err := ParseCertificate(el.Text())
		if err != nil {
			return nil, nil, err
		}
		certs = append(certs, c)
	}
	return certs[0], certs[1:], nil
}

// signingTime toma el primer TmstFirma/TmstFirmaEnvio/TmstCesion del subárbol firmado,
// interpretado en la zona configurada. Sin timestamp usa el reloj del verificador.
func (v *Verifier) signingTime(referenced *etree.Element) time.Time {
	if referenced != nil {
		var found *etree.Element
		var walk func(*etree.Element) bool
		walk = func(e *etree.Element) bool {
			for _, c := range e.ChildElements() {
				if signingTimeTags[c.Tag] {
					found = c
					return true
				}
				if walk(c) {
					return true
				}
			}
			return false
		}
		walk(referenced)
		if found != nil {
			if ts, err := sii.ParseNaiveDateTime(xmlutil.Text(found)); err == nil {
				return ts.In(v.opts.Location)
			}
		}
	}
	return v.opts.Now()
}

func (v *Verifier) checkCertificate(cert *x509.Certificate, intermediates []*x509.Certificate, at time.Time, verdict *Verdict) {
	selfSigned := IsSelfSigned(cert)
	if selfSigned && !v.opts.AllowSelfSigned {
		verdict.fail(ReasonCertificateInvalid, "certificado autofirmado: %s", cert.Subject)
	}
	if err := CheckKeyUsage(cert); err != nil {
		verdict.fail(ReasonCertificateInvalid, "%v", err)
	}
	if at.Before(cert.NotBefore) || at.After(cert.NotAfter) {
		verdict.fail(ReasonCertificateInvalid, "certificado no vigente al %s (vigencia %s a %s)",
			at.Format(time.RFC3339), cert.NotBefore.Format(time.RFC3339), cert.NotAfter.Format(time.RFC3339))
	}
	if v.opts.Roots != nil && !(selfSigned && v.opts.AllowSelfSigned) {
		inter := x509.NewCertPool()
		for _, c := range intermediates {
			inter.AddCert(c)
		}
		_, err := cert.Verify(x509.VerifyOptions{
			Roots:         v.opts.Roots.Pool,
			Intermediates: inter,
			CurrentTime:   at,
			KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
		})
		if err != nil {
			verdict.fail(ReasonCertificateInvalid, "cadena de confianza: %v", err)
		}
	}
}

func describeCertificate(cert *x509.Certificate) *CertificateInfo {
	fp := sha256.Sum256(cert.Raw)
	return &CertificateInfo{
		Subject:           cert.Subject.String(),
		Issuer:            cert.Issuer.String(),
		SerialNumber:      cert.SerialNumber.Text(16),
		NotBefore:         cert.NotBefore,
		NotAfter:          cert.NotAfter,
		SelfSigned:        IsSelfSigned(cert),
		FingerprintSHA256: hex.EncodeToString(fp[:]),
	}
}

func decodeBase64(s string) ([]byte, error) {
	compact := strings.Join(strings.Fields(s), "")
	if compact == "" {
		return nil, fmt.Errorf("valor vacío")
	}
	return base64.StdEncoding.DecodeString(compact)
}
