// Firmador XML-DSig al estilo de los DTE del SII: ds:Signature hermana del elemento
// firmado (Reference "#ID", sin transformaciones) o envolvente sobre la raíz.

package siitest

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"

	"github.com/beevik/etree"

	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/sii/xmldsig"
	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/xmlutil"
)

// SignOptions controla los algoritmos de la firma generada.
type SignOptions struct {
	// Hash para digest y firma. Cero equivale a SHA-1, que es lo que usa el SII.
	Hash crypto.Hash
	// Canonicalization es el método de SignedInfo y del Reference. Vacío: C14N 1.0.
	Canonicalization string
	// Enveloped firma la raíz completa con URI="" y enveloped-signature.
	Enveloped bool
}

func (o SignOptions) hash() crypto.Hash {
	if o.Hash == 0 {
		return crypto.SHA1
	}
	return o.Hash
}

func (o SignOptions) c14n() string {
	if o.Canonicalization == "" {
		return xmlutil.C14N10Rec
	}
	return o.Canonicalization
}

func signatureMethodURI(h crypto.Hash) (string, error) {
	switch h {
	case crypto.SHA1:
		return xmldsig.SignatureRSASHA1, nil
	case crypto.SHA256:
		return xmldsig.SignatureRSASHA256, nil
	case crypto.SHA384:
		return xmldsig.SignatureRSASHA384, nil
	case crypto.SHA512:
		return xmldsig.SignatureRSASHA512, nil
	}
	return "", fmt.Errorf("siitest: hash %v sin método de firma", h)
}

// SignElement firma target y agrega la ds:Signature como último hijo de parent. Con
// opts.Enveloped, target debe ser la raíz y parent el mismo elemento.
func SignElement(parent, target *etree.Element, id Identity, opts SignOptions) (*etree.Element, error) {
	uri := ""
	if !opts.Enveloped {
		idValue := target.SelectAttrValue(xmlutil.IDAttr, "")
		if idValue == "" {
			return nil, fmt.Errorf("siitest: %s sin atributo ID", target.Tag)
		}
		uri = "#" + idValue
	}

	hash := opts.hash()
	digestURI, err := xmldsig.DigestURI(hash)
	if err != nil {
		return nil, err
	}
	methodURI, err := signatureMethodURI(hash)
	if err != nil {
		return nil, err
	}

	// 1) Digest del subárbol referenciado, antes de insertar la firma.
	canonical, err := xmlutil.Canonicalize(target, opts.c14n(), "")
	if err != nil {
		return nil, fmt.Errorf("siitest: canonicalizar referencia: %w", err)
	}
	digest, err := xmldsig.Digest(canonical, hash)
	if err != nil {
		return nil, err
	}

	// 2) Signature con SignedInfo, KeyInfo y SignatureValue vacío.
	sig := etree.NewElement("Signature")
	sig.CreateAttr("xmlns", xmldsig.Namespace)
	signedInfo := sig.CreateElement("SignedInfo")
	signedInfo.CreateElement("CanonicalizationMethod").CreateAttr("Algorithm", opts.c14n())
	signedInfo.CreateElement("SignatureMethod").CreateAttr("Algorithm", methodURI)
	ref := signedInfo.CreateElement("Reference")
	ref.CreateAttr("URI", uri)
	if opts.Enveloped || opts.Canonicalization != "" {
		transforms := ref.CreateElement("Transforms")
		if opts.Enveloped {
			transforms.CreateElement("Transform").CreateAttr("Algorithm", xmldsig.TransformEnveloped)
		}
		transforms.CreateElement("Transform").CreateAttr("Algorithm", opts.c14n())
	}
	ref.CreateElement("DigestMethod").CreateAttr("Algorithm", digestURI)
	ref.CreateElement("DigestValue").SetText(base64.StdEncoding.EncodeToString(digest))
	sigValue := sig.CreateElement("SignatureValue")
	keyInfo := sig.CreateElement("KeyInfo")
	rsaKey := keyInfo.CreateElement("KeyValue").CreateElement("RSAKeyValue")
	rsaKey.CreateElement("Modulus").SetText(base64.StdEncoding.EncodeToString(id.Key.N.Bytes()))
	rsaKey.CreateElement("Exponent").SetText(base64.StdEncoding.EncodeToString(bigEndian(id.Key.E)))
	keyInfo.CreateElement("X509Data").CreateElement("X509Certificate").
		SetText(base64.StdEncoding.EncodeToString(id.Cert.Raw))

	// 3) SignedInfo se canonicaliza ya insertado, con el contexto de namespaces final.
	parent.AddChild(sig)
	canonicalSI, err := xmlutil.Canonicalize(signedInfo, opts.c14n(), "")
	if err != nil {
		return nil, fmt.Errorf("siitest: canonicalizar SignedInfo: %w", err)
	}
	siDigest, err := xmldsig.Digest(canonicalSI, hash)
	if err != nil {
		return nil, err
	}
	value, err := rsa.SignPKCS1v15(rand.Reader, id.Key, hash, siDigest)
	if err != nil {
		return nil, fmt.Errorf("siitest: firmar SignedInfo: %w", err)
	}
	sigValue.SetText(base64.StdEncoding.EncodeToString(value))
	return sig, nil
}

// SignDTE firma el contenedor (Documento, Exportaciones o Liquidacion) del DTE raíz.
func SignDTE(doc *etree.Document, id Identity, opts SignOptions) error {
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("siitest: documento sin raíz")
	}
	if opts.Enveloped {
		_, err := SignElement(root, root, id, opts)
		return err
	}
	return signContainer(root, id, opts)
}

func signContainer(dteEl *etree.Element, id Identity, opts SignOptions) error {
	for _, c := range dteEl.ChildElements() {
		if c.SelectAttr(xmlutil.IDAttr) != nil {
			_, err := SignElement(dteEl, c, id, opts)
			return err
		}
	}
	return fmt.Errorf("siitest: %s sin hijo con ID", dteEl.Tag)
}

func bigEndian(e int) []byte {
	var out []byte
	for e > 0 {
		out = append([]byte{byte(e & 0xff)}, out...)
		e >>= 8
	}
	return out
}
