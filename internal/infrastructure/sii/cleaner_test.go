package sii_test

import (
	"errors"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secretline/lib-cl-sii-go/internal/domain"
	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/sii"
	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/sii/xmldsig"
	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/xmlutil"
	"github.com/secretline/lib-cl-sii-go/internal/siitest"
	pkgsii "github.com/secretline/lib-cl-sii-go/pkg/sii"
)

// dteConDefectos es un DTE firmado al que se le agregan, después de firmar, los
// defectos que el limpiador repara: DocPersonalizado, una hoja de estilo, un xmlns
// redundante dentro del Documento y la firma antes del Documento.
func dteConDefectos(t *testing.T) *etree.Document {
	t.Helper()
	pki := siitest.DefaultPKI(t)
	doc := siitest.DefaultDTE().Signed(t, pki.Leaf, siitest.SignOptions{})
	root := doc.Root()

	root.CreateElement("DocPersonalizado").CreateElement("campoString").SetText("uso interno")
	doc.CreateProcInst("xml-stylesheet", `type="text/xsl" href="dte.xsl"`)
	xmlutil.FindPath(root, "Documento/Encabezado").CreateAttr("xmlns", pkgsii.NamespaceDTE)

	sig := xmlutil.FindChild(root, "Signature", pkgsii.NamespaceDSig)
	root.RemoveChild(sig)
	root.InsertChildAt(0, sig)

	return parseFixture(t, siitest.Bytes(t, doc))
}

func canonicalDocumento(t *testing.T, doc *etree.Document) []byte {
	t.Helper()
	out, err := xmlutil.Canonicalize(xmlutil.FindChild(doc.Root(), "Documento"), xmlutil.C14N10Rec, "")
	require.NoError(t, err)
	return out
}

func defaultClean(t *testing.T, doc *etree.Document) (*etree.Document, sii.CleanReport) {
	t.Helper()
	out, report, err := sii.Clean(doc, sii.CleanOptions{})
	require.NoError(t, err)
	return out, report
}

func TestClean_AplicaReglasSinTocarLoFirmado(t *testing.T) {
	doc := dteConDefectos(t)
	antes := canonicalDocumento(t, doc)

	out, report := defaultClean(t, doc)

	assert.Equal(t, []sii.AppliedRule{
		{Rule: sii.RuleRemoveDocPersonalizado, Matches: 1},
		{Rule: sii.RuleRemoveDocumentProcInst, Matches: 1},
		{Rule: sii.RuleRemoveRedundantXmlns, Matches: 1},
		{Rule: sii.RuleMoveSignatureLast, Matches: 1},
	}, report.Applied)
	assert.True(t, report.Changed())

	root := out.Root()
	assert.Nil(t, xmlutil.FindChild(root, "DocPersonalizado"))
	children := root.ChildElements()
	require.Len(t, children, 2)
	assert.Equal(t, "Documento", children[0].Tag)
	assert.Equal(t, "Signature", children[1].Tag)
	assert.Nil(t, xmlutil.FindPath(root, "Documento/Encabezado").SelectAttr("xmlns"))
	for _, tok := range out.Child {
		if pi, ok := tok.(*etree.ProcInst); ok {
			assert.Equal(t, "xml", pi.Target)
		}
	}

	assert.Equal(t, antes, canonicalDocumento(t, out))
}

func TestClean_FirmaSigueValida(t *testing.T) {
	pki := siitest.DefaultPKI(t)
	out, _ := defaultClean(t, dteConDefectos(t))

	v := xmldsig.NewVerifier(xmldsig.Options{Roots: xmldsig.NewTrustStore(pki.Root.Cert)})
	verdict, err := v.Verify(out)
	require.NoError(t, err)
	assert.True(t, verdict.Valid, "fallas: %+v", verdict.Failures)
}

func TestClean_Idempotente(t *testing.T) {
	once, _ := defaultClean(t, dteConDefectos(t))
	twice, report := defaultClean(t, once)

	assert.False(t, report.Changed())
	a, err := xmlutil.Serialize(once)
	require.NoError(t, err)
	b, err := xmlutil.Serialize(twice)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestClean_NoModificaLaEntrada(t *testing.T) {
	doc := dteConDefectos(t)
	antes, err := xmlutil.Serialize(doc)
	require.NoError(t, err)

	_, _ = defaultClean(t, doc)

	despues, err := xmlutil.Serialize(doc)
	require.NoError(t, err)
	assert.Equal(t, string(antes), string(despues))
	assert.NotNil(t, xmlutil.FindChild(doc.Root(), "DocPersonalizado"))
}

func TestClean_DocumentoLimpioSinCambios(t *testing.T) {
	pki := siitest.DefaultPKI(t)
	doc := parseFixture(t, siitest.Latin1(t, siitest.DefaultDTE().Signed(t, pki.Leaf, siitest.SignOptions{})))
	_, report := defaultClean(t, doc)
	assert.False(t, report.Changed())
}

func TestClean_FormaNoReconocida(t *testing.T) {
	cases := map[string]string{
		"raíz desconocida":     `<EnvioDTE xmlns="http://www.sii.cl/SiiDte"/>`,
		"namespace ajeno":      `<DTE xmlns="urn:otro" version="1.0"><Documento ID="x"/></DTE>`,
		"dos contenedores":     `<DTE xmlns="http://www.sii.cl/SiiDte" version="1.0"><Documento/><Exportaciones/></DTE>`,
		"sin contenedor":       `<DTE xmlns="http://www.sii.cl/SiiDte" version="1.0"/>`,
		"AEC sin DocumentoAEC": `<AEC xmlns="http://www.sii.cl/SiiDte" version="1.0"/>`,
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			doc, err := xmlutil.Parse([]byte(text))
			require.NoError(t, err)
			out, _, err := sii.Clean(doc, sii.CleanOptions{})
			assert.Nil(t, out)
			var uErr *domain.UncleanableDocumentError
			assert.True(t, errors.As(err, &uErr), "se esperaba UncleanableDocumentError, se obtuvo %v", err)
			assert.ErrorIs(t, err, domain.ErrUncleanableDocument)
		})
	}
}

func TestClean_Opciones(t *testing.T) {
	t.Run("regla deshabilitada", func(t *testing.T) {
		opts, err := sii.NewCleanOptions(nil, []string{sii.RuleRemoveDocPersonalizado})
		require.NoError(t, err)
		out, report, err := sii.Clean(dteConDefectos(t), opts)
		require.NoError(t, err)
		assert.NotNil(t, xmlutil.FindChild(out.Root(), "DocPersonalizado"))
		for _, a := range report.Applied {
			assert.NotEqual(t, sii.RuleRemoveDocPersonalizado, a.Rule)
		}
	})

	t.Run("regla desconocida", func(t *testing.T) {
		_, err := sii.NewCleanOptions([]string{"no-existe"}, nil)
		assert.Error(t, err)
	})

	t.Run("namespace faltante habilitado", func(t *testing.T) {
		doc, err := xmlutil.Parse([]byte(`<DTE version="1.0"><Documento ID="x"/></DTE>`))
		require.NoError(t, err)
		opts, err := sii.NewCleanOptions([]string{sii.RuleSetMissingSIIXmlns}, nil)
		require.NoError(t, err)

		out, report, err := sii.Clean(doc, opts)
		require.NoError(t, err)
		assert.Contains(t, report.Applied, sii.AppliedRule{Rule: sii.RuleSetMissingSIIXmlns, Matches: 1})
		assert.Equal(t, pkgsii.NamespaceDTE, out.Root().NamespaceURI())
		assert.Equal(t, "xmlns", out.Root().Attr[0].Key)
	})
}

func TestCleanerRules_Orden(t *testing.T) {
	assert.Equal(t, []string{
		sii.RuleRemoveDocPersonalizado,
		sii.RuleRemoveDocumentProcInst,
		sii.RuleRemoveRedundantXmlns,
		sii.RuleMoveSignatureLast,
		sii.RuleSetMissingSIIXmlns,
	}, sii.CleanerRules())
}
