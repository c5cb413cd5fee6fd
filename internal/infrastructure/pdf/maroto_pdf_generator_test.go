package pdf_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secretline/lib-cl-sii-go/internal/application/verification"
	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/pdf"
	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/sii/xmldsig"
	"github.com/secretline/lib-cl-sii-go/internal/siitest"
)

func process(t *testing.T, raw []byte) verification.Result {
	t.Helper()
	pki := siitest.DefaultPKI(t)
	svc := verification.NewService(
		xmldsig.NewVerifier(xmldsig.Options{Roots: xmldsig.NewTrustStore(pki.Root.Cert)}),
		nil, nil, nil, verification.Options{},
	)
	res, err := svc.Process(context.Background(), raw, "")
	require.NoError(t, err)
	return res
}

func TestGenerateReport_DTE(t *testing.T) {
	pki := siitest.DefaultPKI(t)
	res := process(t, siitest.Latin1(t, siitest.DefaultDTE().Signed(t, pki.Leaf, siitest.SignOptions{})))

	out, err := pdf.NewMarotoPDFGenerator().GenerateReport(context.Background(), res)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")), "debe ser un PDF")
}

func TestGenerateReport_AECRechazado(t *testing.T) {
	pki := siitest.DefaultPKI(t)
	raw := siitest.Latin1(t, siitest.DefaultAEC().Signed(t, pki.Leaf))
	raw = bytes.Replace(raw, []byte("ST CAPITAL S.A."), []byte("ST CAPITAL SPA."), 1)
	res := process(t, raw)
	require.False(t, res.Accepted)

	out, err := pdf.NewMarotoPDFGenerator().GenerateReport(context.Background(), res)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestGenerateReport_SinRegistro(t *testing.T) {
	_, err := pdf.NewMarotoPDFGenerator().GenerateReport(context.Background(), verification.Result{})
	assert.Error(t, err)
}
