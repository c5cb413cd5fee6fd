package sii_test

import (
	"errors"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secretline/lib-cl-sii-go/internal/domain"
	"github.com/secretline/lib-cl-sii-go/internal/domain/dte"
	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/sii"
	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/xmlutil"
	"github.com/secretline/lib-cl-sii-go/internal/siitest"
	pkgsii "github.com/secretline/lib-cl-sii-go/pkg/sii"
)

// parseFixture pasa los bytes por el normalizador y el parser, como el pipeline.
func parseFixture(t *testing.T, raw []byte) *etree.Document {
	t.Helper()
	norm, err := sii.Normalize(raw, "")
	require.NoError(t, err)
	doc, err := xmlutil.Parse(norm.Text)
	require.NoError(t, err)
	return doc
}

func signedDTE(t *testing.T, d siitest.DTE) *etree.Document {
	t.Helper()
	pki := siitest.DefaultPKI(t)
	return parseFixture(t, siitest.Latin1(t, d.Signed(t, pki.Leaf, siitest.SignOptions{})))
}

func schemaErr(t *testing.T, err error) *domain.SchemaValidationError {
	t.Helper()
	var sErr *domain.SchemaValidationError
	require.True(t, errors.As(err, &sErr), "se esperaba SchemaValidationError, se obtuvo %v", err)
	assert.ErrorIs(t, err, domain.ErrSchemaValidation)
	return sErr
}

// ── DTE ─────────────────────────────────────────────────────────────────────

func TestValidate_DTEFixture(t *testing.T) {
	rec, err := sii.Validate(signedDTE(t, siitest.DefaultDTE()))
	require.NoError(t, err)

	l2, ok := rec.(dte.DteDataL2)
	require.True(t, ok, "se esperaba DteDataL2, se obtuvo %T", rec)
	assert.Equal(t, dte.VariantDocumento, l2.Variant())
	assert.Equal(t, pkgsii.TipoFacturaElectronica, l2.TipoDTE)
	assert.Equal(t, int64(170), l2.Folio)
	assert.Equal(t, "76354771-K", l2.EmisorRut.String())
	assert.Equal(t, "96790240-3", l2.ReceptorRut.String())
	assert.Equal(t, "2019-04-01", l2.FechaEmision.String())
	assert.Equal(t, "2019-05-01", l2.FechaVencimiento.String())
	assert.Equal(t, int64(2996301), l2.MontoTotal)
	assert.Equal(t, dte.SomeInt(2517900), l2.MontoNeto)
	assert.Equal(t, dte.SomeInt(478401), l2.IVA)
	assert.False(t, l2.MontoExento.Valid)
	assert.Equal(t, "19", l2.TasaIVA.Decimal.String())
	assert.Equal(t, "INGENIERIA ENACON SPA", l2.EmisorRazonSocial)
	assert.Equal(t, "Ingeniería y Construcción", l2.EmisorGiro)
	assert.Equal(t, "MINERA LOS PELAMBRES", l2.ReceptorRazonSocial)
	assert.Equal(t, "2019-04-01T01:36:40", l2.FirmaDocumento.String())
	assert.Contains(t, l2.SignatureX509CertPEM, "-----BEGIN CERTIFICATE-----")
	assert.NotEmpty(t, l2.SignatureValueBase64)
	assert.NotEmpty(t, l2.SignatureDigestBase64)
	assert.Equal(t, "76354771-K--33--170", rec.Slug())
}

func TestValidate_FolioEnElLimite(t *testing.T) {
	d := siitest.DefaultDTE()
	d.Folio = "9999999999"
	rec, err := sii.Validate(signedDTE(t, d))
	require.NoError(t, err)
	assert.Equal(t, int64(9_999_999_999), rec.NaturalKey().Folio)

	d.Folio = "10000000000"
	_, err = sii.Validate(signedDTE(t, d))
	sErr := schemaErr(t, err)
	assert.Equal(t, "DTE/Documento/Encabezado/IdDoc/Folio", sErr.Field)
	assert.Equal(t, domain.ViolationOutOfRange, sErr.Code)
	assert.Equal(t, "10000000000", sErr.Value)
}

func TestValidate_ViolacionesPorCampo(t *testing.T) {
	cases := map[string]struct {
		mutate func(*siitest.DTE)
		field  string
		code   domain.ViolationCode
	}{
		"folio no numérico": {
			func(d *siitest.DTE) { d.Folio = "abc" },
			"DTE/Documento/Encabezado/IdDoc/Folio", domain.ViolationWrongType,
		},
		"folio cero": {
			func(d *siitest.DTE) { d.Folio = "0" },
			"DTE/Documento/Encabezado/IdDoc/Folio", domain.ViolationOutOfRange,
		},
		"tipo fuera de catálogo": {
			func(d *siitest.DTE) { d.Tipo = "99" },
			"DTE/Documento/Encabezado/IdDoc/TipoDTE", domain.ViolationOutOfRange,
		},
		"fecha inválida": {
			func(d *siitest.DTE) { d.FchEmis = "2019-02-30" },
			"DTE/Documento/Encabezado/IdDoc/FchEmis", domain.ViolationWrongType,
		},
		"rut con dígito verificador erróneo": {
			func(d *siitest.DTE) { d.RUTRecep = "96790240-4" },
			"DTE/Documento/Encabezado/Receptor/RUTRecep", domain.ViolationWrongType,
		},
		"rut con puntos": {
			func(d *siitest.DTE) { d.RUTEmisor = "76.354.771-K" },
			"DTE/Documento/Encabezado/Emisor/RUTEmisor", domain.ViolationWrongType,
		},
		"razón social del receptor ausente": {
			func(d *siitest.DTE) { d.RznSocRecep = "" },
			"DTE/Documento/Encabezado/Receptor/RznSocRecep", domain.ViolationMissing,
		},
		"monto negativo": {
			func(d *siitest.DTE) { d.MntTotal = "-1" },
			"DTE/Documento/Encabezado/Totales/MntTotal", domain.ViolationWrongType,
		},
		"tasa IVA sobre 100": {
			func(d *siitest.DTE) { d.TasaIVA = "119" },
			"DTE/Documento/Encabezado/Totales/TasaIVA", domain.ViolationOutOfRange,
		},
		"TmstFirma ausente": {
			func(d *siitest.DTE) { d.TmstFirma = "" },
			"DTE/Documento/TmstFirma", domain.ViolationMissing,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			d := siitest.DefaultDTE()
			tc.mutate(&d)
			rec, err := sii.Validate(signedDTE(t, d))
			assert.Nil(t, rec)
			sErr := schemaErr(t, err)
			assert.Equal(t, tc.field, sErr.Field)
			assert.Equal(t, tc.code, sErr.Code)
		})
	}
}

// Con dos violaciones siempre se informa la primera en orden de tabla.
func TestValidate_PrimeraViolacionDeterminista(t *testing.T) {
	d := siitest.DefaultDTE()
	d.Folio = "abc"
	d.RUTRecep = "96790240-4"
	doc := signedDTE(t, d)

	for i := 0; i < 3; i++ {
		_, err := sii.Validate(doc)
		sErr := schemaErr(t, err)
		assert.Equal(t, "DTE/Documento/Encabezado/IdDoc/Folio", sErr.Field)
	}
}

func TestValidate_ReglasCruzadas(t *testing.T) {
	t.Run("exento con IVA", func(t *testing.T) {
		d := siitest.DefaultDTE()
		d.Tipo = "34"
		d.MntNeto, d.TasaIVA = "", ""
		d.MntExe = "2996301"
		d.IVA = "100"
		_, err := sii.Validate(signedDTE(t, d))
		sErr := schemaErr(t, err)
		assert.Equal(t, "DTE/Documento/Encabezado/Totales/IVA", sErr.Field)
		assert.Equal(t, domain.ViolationMutuallyExclusive, sErr.Code)
	})

	t.Run("neto sin tasa", func(t *testing.T) {
		d := siitest.DefaultDTE()
		d.TasaIVA = ""
		_, err := sii.Validate(signedDTE(t, d))
		sErr := schemaErr(t, err)
		assert.Equal(t, "DTE/Documento/Encabezado/Totales/TasaIVA", sErr.Field)
		assert.Equal(t, domain.ViolationMissing, sErr.Code)
	})

	t.Run("vencimiento anterior a emisión", func(t *testing.T) {
		d := siitest.DefaultDTE()
		d.FchVenc = "2019-03-01"
		_, err := sii.Validate(signedDTE(t, d))
		sErr := schemaErr(t, err)
		assert.Equal(t, "DTE/Documento/Encabezado/IdDoc/FchVenc", sErr.Field)
		assert.Equal(t, domain.ViolationOutOfRange, sErr.Code)
	})

	t.Run("exento sin IVA es válido", func(t *testing.T) {
		d := siitest.DefaultDTE()
		d.Tipo = "34"
		d.MntNeto, d.TasaIVA, d.IVA = "", "", ""
		d.MntExe = "2996301"
		rec, err := sii.Validate(signedDTE(t, d))
		require.NoError(t, err)
		assert.Equal(t, dte.SomeInt(2996301), rec.(dte.DteDataL2).MontoExento)
	})
}

func TestValidate_Variantes(t *testing.T) {
	t.Run("exportación", func(t *testing.T) {
		d := siitest.DefaultDTE()
		d.Container = "Exportaciones"
		d.Tipo = "110"
		d.MntNeto, d.TasaIVA, d.IVA = "", "", ""
		d.MntExe = "2996301"
		rec, err := sii.Validate(signedDTE(t, d))
		require.NoError(t, err)
		assert.Equal(t, dte.VariantExportaciones, rec.Variant())
	})

	t.Run("tipo que no corresponde al contenedor", func(t *testing.T) {
		d := siitest.DefaultDTE()
		d.Container = "Exportaciones"
		_, err := sii.Validate(signedDTE(t, d))
		sErr := schemaErr(t, err)
		assert.Equal(t, "DTE/Exportaciones/Encabezado/IdDoc/TipoDTE", sErr.Field)
		assert.Equal(t, domain.ViolationOutOfRange, sErr.Code)
	})

	t.Run("versión desconocida", func(t *testing.T) {
		doc := signedDTE(t, siitest.DefaultDTE())
		doc.Root().SelectAttr("version").Value = "2.0"
		_, err := sii.Validate(doc)
		sErr := schemaErr(t, err)
		assert.Equal(t, "DTE/@version", sErr.Field)
		assert.Equal(t, domain.ViolationOutOfRange, sErr.Code)
	})

	t.Run("raíz desconocida", func(t *testing.T) {
		doc, err := xmlutil.Parse([]byte(`<EnvioDTE xmlns="http://www.sii.cl/SiiDte"/>`))
		require.NoError(t, err)
		_, err = sii.Validate(doc)
		sErr := schemaErr(t, err)
		assert.Equal(t, domain.ViolationWrongType, sErr.Code)
	})
}

// La firma no es parte del modelo de datos: su ausencia o mala codificación la
// reporta el verificador, no el validador.
func TestValidate_FirmaNoEsParteDelModelo(t *testing.T) {
	t.Run("sin firma", func(t *testing.T) {
		doc := parseFixture(t, siitest.Latin1(t, siitest.DefaultDTE().Document()))
		rec, err := sii.Validate(doc)
		require.NoError(t, err)
		l2, ok := rec.(dte.DteDataL2)
		require.True(t, ok)
		assert.Equal(t, "76354771-K--33--170", l2.Slug())
		assert.Empty(t, l2.SignatureValueBase64)
		assert.Empty(t, l2.SignatureDigestBase64)
		assert.Empty(t, l2.SignatureX509CertPEM)
	})

	t.Run("base64 ilegible en firma y certificado", func(t *testing.T) {
		doc := signedDTE(t, siitest.DefaultDTE())
		doc.FindElement("//SignatureValue").SetText("@@no-es-base64@@")
		doc.FindElement("//X509Certificate").SetText("%%%")
		rec, err := sii.Validate(doc)
		require.NoError(t, err)
		l2 := rec.(dte.DteDataL2)
		assert.Equal(t, "@@no-es-base64@@", l2.SignatureValueBase64)
		assert.Empty(t, l2.SignatureX509CertPEM)
	})
}

// ── AEC ─────────────────────────────────────────────────────────────────────

func signedAEC(t *testing.T, a siitest.AEC) *etree.Document {
	t.Helper()
	pki := siitest.DefaultPKI(t)
	return parseFixture(t, siitest.Latin1(t, a.Signed(t, pki.Leaf)))
}

func TestValidate_AECFixture(t *testing.T) {
	rec, err := sii.Validate(signedAEC(t, siitest.DefaultAEC()))
	require.NoError(t, err)

	aec, ok := rec.(dte.AecXmlData)
	require.True(t, ok, "se esperaba AecXmlData, se obtuvo %T", rec)
	assert.Equal(t, dte.VariantAEC, aec.Variant())
	assert.Equal(t, "76354771-K", aec.CedenteRut.String())
	assert.Equal(t, "76389992-6", aec.CesionarioRut.String())
	assert.Equal(t, "ANGEL PEZO", aec.ContactoNombre)
	assert.Equal(t, "2019-04-05T12:57:32", aec.FechaFirma.String())
	assert.Equal(t, int64(170), aec.Dte.Folio)
	assert.Equal(t, int64(1), aec.Seq())
	assert.Equal(t, int64(2996301), aec.Monto())
	assert.Equal(t, "2019-05-01", aec.UltimoVencimiento().String())

	cesiones := aec.Cesiones()
	require.Len(t, cesiones, 1)
	assert.Equal(t, "ST CAPITAL S.A.", cesiones[0].CesionarioRazonSocial)
	assert.Equal(t, "pagos@pelambres.cl", cesiones[0].DteDeudorEmail)
	assert.Equal(t, "76354771-K--33--170--1", aec.Slug())
}

func TestValidate_AECSecuenciaFueraDeOrden(t *testing.T) {
	a := siitest.DefaultAEC()
	a.Cesiones[0].Seq = "2"
	_, err := sii.Validate(signedAEC(t, a))
	sErr := schemaErr(t, err)
	assert.Equal(t, "AEC/DocumentoAEC/Cesiones/Cesion[1]/DocumentoCesion/SeqCesion", sErr.Field)
	assert.Equal(t, domain.ViolationOutOfRange, sErr.Code)
}

func TestValidate_AECCaratulaDistintaDeUltimaCesion(t *testing.T) {
	a := siitest.DefaultAEC()
	a.RutCesionario = "78773510-K"
	_, err := sii.Validate(signedAEC(t, a))
	sErr := schemaErr(t, err)
	assert.Equal(t, "AEC/DocumentoAEC/Caratula", sErr.Field)
	assert.Equal(t, domain.ViolationMutuallyExclusive, sErr.Code)
}

func TestValidate_AECDosCesiones(t *testing.T) {
	a := siitest.DefaultAEC()
	segunda := a.Cesiones[0]
	segunda.ID = "DocumentoCesion_76354771-K_33_170_2"
	segunda.Seq = "2"
	segunda.CedenteRUT = "76389992-6"
	segunda.CedenteRazonSocial = "ST CAPITAL S.A."
	segunda.CesionarioRUT = "78773510-K"
	segunda.CesionarioRazonSocial = "FONDO DE INVERSION PRIVADO"
	a.Cesiones = append(a.Cesiones, segunda)
	a.RutCedente, a.RutCesionario = "76389992-6", "78773510-K"

	rec, err := sii.Validate(signedAEC(t, a))
	require.NoError(t, err)
	aec := rec.(dte.AecXmlData)
	assert.Equal(t, int64(2), aec.Seq())
	assert.Len(t, aec.Cesiones(), 2)
}
