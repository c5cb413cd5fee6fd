package xmlutil_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secretline/lib-cl-sii-go/internal/domain"
	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/xmlutil"
)

// ── Parse ───────────────────────────────────────────────────────────────────

const dteMinimo = `<?xml version="1.0" encoding="UTF-8"?>
<DTE xmlns="http://www.sii.cl/SiiDte" version="1.0"><Documento ID="F60T33"><Folio>60</Folio></Documento><Signature xmlns="http://www.w3.org/2000/09/xmldsig#"><SignatureValue>AA==</SignatureValue></Signature></DTE>`

func TestParse_DocumentoValido(t *testing.T) {
	doc, err := xmlutil.Parse([]byte(dteMinimo))
	require.NoError(t, err)
	root := doc.Root()
	require.NotNil(t, root)
	assert.Equal(t, "DTE", root.Tag)
	assert.Equal(t, "http://www.sii.cl/SiiDte", root.NamespaceURI())
}

func malformedKind(t *testing.T, err error) domain.MalformedXMLKind {
	t.Helper()
	var mErr *domain.MalformedXMLError
	require.True(t, errors.As(err, &mErr), "se esperaba MalformedXMLError, se obtuvo %v", err)
	assert.ErrorIs(t, err, domain.ErrMalformedXML)
	return mErr.Kind
}

func TestParse_EntidadExternaRechazada(t *testing.T) {
	xxe := `<?xml version="1.0"?><!DOCTYPE DTE [<!ENTITY xxe SYSTEM "file:///etc/passwd">]><DTE>&xxe;</DTE>`
	_, err := xmlutil.Parse([]byte(xxe))
	require.Error(t, err)
	assert.Equal(t, domain.MalformedForbiddenFeature, malformedKind(t, err))
}

func TestParse_EntidadInternaRechazada(t *testing.T) {
	bomb := `<?xml version="1.0"?><!DOCTYPE lolz [<!ENTITY lol "lol"><!ENTITY lol2 "&lol;&lol;">]><lolz>&lol2;</lolz>`
	_, err := xmlutil.Parse([]byte(bomb))
	require.Error(t, err)
	assert.Equal(t, domain.MalformedForbiddenFeature, malformedKind(t, err))
}

func TestParse_DoctypeConIdentificadorExterno(t *testing.T) {
	_, err := xmlutil.Parse([]byte(`<!DOCTYPE DTE SYSTEM "http://example.com/dte.dtd"><DTE/>`))
	require.Error(t, err)
	assert.Equal(t, domain.MalformedForbiddenFeature, malformedKind(t, err))
}

func TestParse_DoctypeDesnudoPermitido(t *testing.T) {
	_, err := xmlutil.Parse([]byte(`<!DOCTYPE DTE><DTE/>`))
	require.NoError(t, err)
}

func TestParse_ErroresDeSintaxis(t *testing.T) {
	casos := map[string]string{
		"etiquetas cruzadas":   `<DTE><Documento></DTE></Documento>`,
		"sin cierre":           `<DTE><Documento>`,
		"entidad no definida":  `<DTE>&nbsp;</DTE>`,
		"atributo duplicado":   `<DTE version="1.0" version="1.0"/>`,
		"vacío":                ``,
		"codificación latin-1": `<?xml version="1.0" encoding="ISO-8859-1"?><DTE/>`,
	}
	for nombre, texto := range casos {
		t.Run(nombre, func(t *testing.T) {
			_, err := xmlutil.Parse([]byte(texto))
			require.Error(t, err)
			assert.Equal(t, domain.MalformedSyntax, malformedKind(t, err))
		})
	}
}

func TestParse_EntidadesPredefinidas(t *testing.T) {
	doc, err := xmlutil.Parse([]byte(`<RznSoc>Perez &amp; Cia &lt;Ltda&gt;</RznSoc>`))
	require.NoError(t, err)
	assert.Equal(t, "Perez & Cia <Ltda>", doc.Root().Text())
}

// ── Canonicalize ────────────────────────────────────────────────────────────

func TestCanonicalize_HeredaNamespaceDelAncestro(t *testing.T) {
	doc, err := xmlutil.Parse([]byte(dteMinimo))
	require.NoError(t, err)
	documento := xmlutil.FindChild(doc.Root(), "Documento")
	require.NotNil(t, documento)

	out, err := xmlutil.Canonicalize(documento, xmlutil.C14N10Rec, "")
	require.NoError(t, err)
	assert.Equal(t, `<Documento xmlns="http://www.sii.cl/SiiDte" ID="F60T33"><Folio>60</Folio></Documento>`, string(out))

	// El árbol original no se toca.
	assert.Empty(t, documento.Attr[0].Space)
	assert.Len(t, documento.Attr, 1)
}

func TestCanonicalize_InclusivaVsExclusiva(t *testing.T) {
	text := `<DTE xmlns="http://www.sii.cl/SiiDte" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"><Documento ID="D1"><Folio>1</Folio></Documento></DTE>`
	doc, err := xmlutil.Parse([]byte(text))
	require.NoError(t, err)
	documento := xmlutil.FindChild(doc.Root(), "Documento")

	inc, err := xmlutil.Canonicalize(documento, xmlutil.C14N10Rec, "")
	require.NoError(t, err)
	assert.Equal(t, `<Documento xmlns="http://www.sii.cl/SiiDte" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" ID="D1"><Folio>1</Folio></Documento>`, string(inc))

	exc, err := xmlutil.Canonicalize(documento, xmlutil.C14N10Exclusive, "")
	require.NoError(t, err)
	assert.Equal(t, `<Documento xmlns="http://www.sii.cl/SiiDte" ID="D1"><Folio>1</Folio></Documento>`, string(exc))
}

func TestCanonicalize_OrdenaAtributosYExpandeVacios(t *testing.T) {
	doc, err := xmlutil.Parse([]byte(`<Item b="2" a="1"><Vacio/></Item>`))
	require.NoError(t, err)
	out, err := xmlutil.Canonicalize(doc.Root(), xmlutil.C14N10Rec, "")
	require.NoError(t, err)
	assert.Equal(t, `<Item a="1" b="2"><Vacio></Vacio></Item>`, string(out))
}

func TestCanonicalize_Idempotente(t *testing.T) {
	metodos := []string{xmlutil.C14N10Rec, xmlutil.C14N10Exclusive, xmlutil.C14N11}
	for _, m := range metodos {
		t.Run(m, func(t *testing.T) {
			doc, err := xmlutil.Parse([]byte(dteMinimo))
			require.NoError(t, err)
			first, err := xmlutil.Canonicalize(doc.Root(), m, "")
			require.NoError(t, err)

			again, err := xmlutil.Parse(first)
			require.NoError(t, err)
			second, err := xmlutil.Canonicalize(again.Root(), m, "")
			require.NoError(t, err)
			assert.Equal(t, string(first), string(second))

			third, err := xmlutil.Canonicalize(doc.Root(), m, "")
			require.NoError(t, err)
			assert.Equal(t, first, third)
		})
	}
}

func TestCanonicalize_MetodoDesconocido(t *testing.T) {
	doc, err := xmlutil.Parse([]byte(`<a/>`))
	require.NoError(t, err)
	_, err = xmlutil.Canonicalize(doc.Root(), "urn:desconocido", "")
	assert.ErrorIs(t, err, domain.ErrUnsupportedAlgorithm)
	assert.False(t, xmlutil.IsCanonicalizationMethod("urn:desconocido"))
	assert.True(t, xmlutil.IsCanonicalizationMethod(xmlutil.C14N11WithComments))
}

func TestCanonicalizeDocument_Idempotente(t *testing.T) {
	first, err := xmlutil.CanonicalizeDocument([]byte(dteMinimo))
	require.NoError(t, err)
	second, err := xmlutil.CanonicalizeDocument(first)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestCanonicalizeDocument_RechazaEntidades(t *testing.T) {
	_, err := xmlutil.CanonicalizeDocument([]byte(`<!DOCTYPE a [<!ENTITY e "x">]><a>&e;</a>`))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMalformedXML)
}

// ── Navegación ──────────────────────────────────────────────────────────────

func TestFindByID(t *testing.T) {
	doc, err := xmlutil.Parse([]byte(dteMinimo))
	require.NoError(t, err)

	el, err := xmlutil.FindByID(doc.Root(), "F60T33")
	require.NoError(t, err)
	assert.Equal(t, "Documento", el.Tag)

	_, err = xmlutil.FindByID(doc.Root(), "NOEXISTE")
	assert.ErrorIs(t, err, xmlutil.ErrIDNotFound)

	dup, err := xmlutil.Parse([]byte(`<r><a ID="X"/><b ID="X"/></r>`))
	require.NoError(t, err)
	_, err = xmlutil.FindByID(dup.Root(), "X")
	assert.ErrorIs(t, err, xmlutil.ErrDuplicateID)
}

func TestFindPathYNamespaces(t *testing.T) {
	doc, err := xmlutil.Parse([]byte(dteMinimo))
	require.NoError(t, err)
	root := doc.Root()

	folio := xmlutil.FindPath(root, "Documento/Folio", "http://www.sii.cl/SiiDte")
	require.NotNil(t, folio)
	assert.Equal(t, "60", xmlutil.Text(folio))
	assert.Equal(t, "DTE/Documento/Folio", xmlutil.Path(folio))

	assert.Nil(t, xmlutil.FindChild(root, "Signature", "http://www.sii.cl/SiiDte"))
	assert.NotNil(t, xmlutil.FindChild(root, "Signature", "http://www.w3.org/2000/09/xmldsig#"))
	assert.Len(t, xmlutil.FindDescendants(root, "SignatureValue"), 1)
}

func TestIndexPath_UbicaNodoEnCopia(t *testing.T) {
	doc, err := xmlutil.Parse([]byte(dteMinimo))
	require.NoError(t, err)
	root := doc.Root()
	sv := xmlutil.FindFirstDescendant(root, "SignatureValue")

	path, ok := xmlutil.IndexPath(root, sv)
	require.True(t, ok)
	cp := root.Copy()
	assert.Equal(t, "SignatureValue", xmlutil.FollowIndexPath(cp, path).Tag)
}

func TestCopyDocument_Independiente(t *testing.T) {
	doc, err := xmlutil.Parse([]byte(`<?xml-stylesheet href="x.xsl"?><r><a/></r>`))
	require.NoError(t, err)
	cp := xmlutil.CopyDocument(doc)

	for _, tok := range append(cp.Child[:0:0], cp.Child...) {
		cp.RemoveChild(tok)
	}
	assert.Empty(t, cp.Child)
	assert.NotNil(t, doc.Root())
	assert.Len(t, doc.Child, 2)
}
