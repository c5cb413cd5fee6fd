package xmlutil

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
	"github.com/russellhaering/goxmldsig/etreeutils"
	"github.com/ucarion/c14n"

	"github.com/secretline/lib-cl-sii-go/internal/domain"
)

// Métodos de canonicalización (URI del atributo Algorithm de XML-DSig).
const (
	C14N10Rec                   = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	C14N10RecWithComments       = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315#WithComments"
	C14N10Exclusive             = "http://www.w3.org/2001/10/xml-exc-c14n#"
	C14N10ExclusiveWithComments = "http://www.w3.org/2001/10/xml-exc-c14n#WithComments"
	C14N11                      = "http://www.w3.org/2006/12/xml-c14n11"
	C14N11WithComments          = "http://www.w3.org/2006/12/xml-c14n11#WithComments"
)

// IsCanonicalizationMethod indica si el URI corresponde a un método soportado.
func IsCanonicalizationMethod(method string) bool {
	_, err := canonicalizerFor(method, "")
	return err == nil
}

func canonicalizerFor(method, inclusivePrefixes string) (dsig.Canonicalizer, error) {
	switch method {
	case C14N10Rec:
		return dsig.MakeC14N10RecCanonicalizer(), nil
	case C14N10RecWithComments:
		return dsig.MakeC14N10WithCommentsCanonicalizer(), nil
	case C14N10Exclusive:
		return dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList(inclusivePrefixes), nil
	case C14N10ExclusiveWithComments:
		return dsig.MakeC14N10ExclusiveWithCommentsCanonicalizerWithPrefixList(inclusivePrefixes), nil
	case C14N11:
		return dsig.MakeC14N11Canonicalizer(), nil
	case C14N11WithComments:
		return dsig.MakeC14N11WithCommentsCanonicalizer(), nil
	}
	return nil, fmt.Errorf("%w: canonicalización %q", domain.ErrUnsupportedAlgorithm, method)
}

// Canonicalize devuelve la forma C14N del subárbol el. Las declaraciones de namespace
// heredadas de los ancestros se copian al subárbol desprendido antes de canonicalizar;
// el árbol original no se modifica. inclusivePrefixes solo aplica a la variante exclusiva.
func Canonicalize(el *etree.Element, method, inclusivePrefixes string) ([]byte, error) {
	c, err := canonicalizerFor(method, inclusivePrefixes)
	if err != nil {
		return nil, err
	}
	ctx, err := etreeutils.NSBuildParentContext(el)
	if err != nil {
		return nil, fmt.Errorf("xmlutil: contexto de namespaces de %s: %w", Path(el), err)
	}
	detached, err := etreeutils.NSDetatch(ctx, el)
	if err != nil {
		return nil, fmt.Errorf("xmlutil: desprender %s: %w", Path(el), err)
	}
	if method != C14N10Exclusive && method != C14N10ExclusiveWithComments {
		inheritXMLAttrs(el, detached)
	}

	out, err := c.Canonicalize(detached)
	if err != nil {
		return nil, fmt.Errorf("xmlutil: canonicalizar %s: %w", Path(el), err)
	}
	return out, nil
}

// inheritXMLAttrs trae los atributos xml:* de los ancestros (xml:lang, xml:space), que la
// C14N inclusiva hereda en el elemento apex.
func inheritXMLAttrs(src, dst *etree.Element) {
	for p := src.Parent(); p != nil; p = p.Parent() {
		for _, a := range p.Attr {
			if a.Space != "xml" {
				continue
			}
			if dst.SelectAttr("xml:"+a.Key) == nil {
				dst.CreateAttr("xml:"+a.Key, a.Value)
			}
		}
	}
}

// CanonicalizeDocument aplica C14N inclusiva a un documento completo ya serializado,
// en streaming. Sirve para comparar documentos y para almacenarlos en forma normal.
func CanonicalizeDocument(text []byte) ([]byte, error) {
	if err := scanDirectives(text); err != nil {
		return nil, err
	}
	dec := xml.NewDecoder(bytes.NewReader(text))
	dec.CharsetReader = utf8CharsetReader
	dec.Entity = map[string]string{}
	out, err := c14n.Canonicalize(dec)
	if err != nil {
		return nil, &domain.MalformedXMLError{Kind: domain.MalformedSyntax, Err: err}
	}
	return out, nil
}
