package sii

import (
	"fmt"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/secretline/lib-cl-sii-go/internal/domain"
	"github.com/secretline/lib-cl-sii-go/internal/domain/dte"
	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/xmlutil"
	"github.com/secretline/lib-cl-sii-go/pkg/sii"
)

// dteContainers son los contenedores posibles bajo DTE, uno por variante.
var dteContainers = []struct {
	tag     string
	variant dte.Variant
}{
	{"Documento", dte.VariantDocumento},
	{"Exportaciones", dte.VariantExportaciones},
	{"Liquidacion", dte.VariantLiquidacion},
}

var tasaIVAMax = decimal.NewFromInt(100)

// tipoAllowed restringe el tipo de DTE según el contenedor.
func tipoAllowed(v dte.Variant, t sii.TipoDTE) bool {
	switch v {
	case dte.VariantExportaciones:
		return t.IsExportacion()
	case dte.VariantLiquidacion:
		return t == sii.TipoLiquidacionFactura
	case dte.VariantDocumento:
		return !t.IsExportacion() && t != sii.TipoLiquidacionFactura
	}
	return false
}

// dteDraft acumula los valores coercionados de la tabla antes de construir el registro.
type dteDraft struct {
	variant    dte.Variant
	tipo       sii.TipoDTE
	folio      int64
	fchEmis    sii.Date
	emisor     sii.Rut
	receptor   sii.Rut
	montoTotal int64
	tasaIVA    decimal.Decimal
	hasTasaIVA bool
	l2         dte.L2Fields
}

func (d *dteDraft) fields() []field {
	return []field{
		{path: "Encabezado/IdDoc/TipoDTE", required: true, set: func(v string) error {
			t, err := parseTipoDTE(v)
			if err != nil {
				return err
			}
			if !tipoAllowed(d.variant, t) {
				return outOfRange(fmt.Errorf("%w: tipo %d no corresponde a %s", dte.ErrOutOfRange, int(t), d.variant))
			}
			d.tipo = t
			return nil
		}},
		{path: "Encabezado/IdDoc/Folio", required: true, set: setFolio(&d.folio)},
		{path: "Encabezado/IdDoc/FchEmis", required: true, set: setDate(&d.fchEmis)},
		{path: "Encabezado/IdDoc/FchVenc", set: setDate(&d.l2.FechaVencimiento)},
		{path: "Encabezado/Emisor/RUTEmisor", required: true, set: setRut(&d.emisor)},
		{path: "Encabezado/Emisor/RznSoc|RznSocEmisor", required: true, set: setRazonSocial(&d.l2.EmisorRazonSocial)},
		{path: "Encabezado/Emisor/GiroEmis|GiroEmisor", set: setOptionalText(&d.l2.EmisorGiro, sii.GiroMaxLength)},
		{path: "Encabezado/Emisor/CorreoEmisor", set: setOptionalText(&d.l2.EmisorEmail, 0)},
		{path: "Encabezado/Receptor/RUTRecep", required: true, set: setRut(&d.receptor)},
		{path: "Encabezado/Receptor/RznSocRecep", required: true, set: setRazonSocial(&d.l2.ReceptorRazonSocial)},
		{path: "Encabezado/Receptor/CorreoRecep", set: setOptionalText(&d.l2.ReceptorEmail, 0)},
		{path: "Encabezado/Totales/MntNeto", set: setOptionalMonto(&d.l2.MontoNeto)},
		{path: "Encabezado/Totales/MntExe", set: setOptionalMonto(&d.l2.MontoExento)},
		{path: "Encabezado/Totales/TasaIVA", set: func(v string) error {
			tasa, err := parseSIIDecimal(v)
			if err != nil {
				return err
			}
			if tasa.IsNegative() || tasa.GreaterThan(tasaIVAMax) {
				return outOfRange(fmt.Errorf("%w: tasa IVA %s", dte.ErrOutOfRange, v))
			}
			d.tasaIVA, d.hasTasaIVA = tasa, true
			return nil
		}},
		{path: "Encabezado/Totales/IVA", set: setOptionalMonto(&d.l2.IVA)},
		{path: "Encabezado/Totales/MntTotal", required: true, set: setMonto(&d.montoTotal)},
		{path: "TmstFirma", required: true, set: setTimestamp(&d.l2.FirmaDocumento)},
	}
}

// signatureFields se resuelven relativas al elemento DTE, no al contenedor. Son
// opcionales y no se validan: ausencia y codificación son asunto del verificador,
// que las reporta en el veredicto sin abortar el pipeline.
func (d *dteDraft) signatureFields() []field {
	return []field{
		{path: "Signature/SignedInfo/Reference/DigestValue", namespaces: dsigNamespaces, set: setCompact(&d.l2.SignatureDigestBase64)},
		{path: "Signature/SignatureValue", namespaces: dsigNamespaces, set: setCompact(&d.l2.SignatureValueBase64)},
		{path: "Signature/KeyInfo/X509Data/X509Certificate", namespaces: dsigNamespaces, set: setCertificatePEM(&d.l2.SignatureX509CertPEM)},
	}
}

// crossChecks corre después de la tabla, en orden fijo.
func (d *dteDraft) crossChecks(totales, idDoc fieldScope) error {
	if d.tipo.IsExenta() && d.l2.IVA.Valid {
		return &domain.SchemaValidationError{
			Field: totales.join("IVA"),
			Code:  domain.ViolationMutuallyExclusive,
			Err:   fmt.Errorf("el tipo %d es exento y trae IVA", int(d.tipo)),
		}
	}

	group := []struct {
		name    string
		present bool
	}{
		{"MntNeto", d.l2.MontoNeto.Valid},
		{"TasaIVA", d.hasTasaIVA},
		{"IVA", d.l2.IVA.Valid},
	}
	anyPresent := false
	for _, g := range group {
		anyPresent = anyPresent || g.present
	}
	if anyPresent {
		for _, g := range group {
			if !g.present {
				return &domain.SchemaValidationError{
					Field: totales.join(g.name),
					Code:  domain.ViolationMissing,
					Err:   fmt.Errorf("MntNeto, TasaIVA e IVA van juntos"),
				}
			}
		}
	}

	if !d.l2.FechaVencimiento.IsZero() && d.l2.FechaVencimiento.Before(d.fchEmis) {
		return &domain.SchemaValidationError{
			Field: idDoc.join("FchVenc"),
			Code:  domain.ViolationOutOfRange,
			Value: d.l2.FechaVencimiento.String(),
			Err:   fmt.Errorf("%w: FchVenc anterior a FchEmis", dte.ErrOutOfRange),
		}
	}
	return nil
}

// dteVariant identifica el contenedor único del elemento DTE y valida la versión.
func dteVariant(root *etree.Element) (*etree.Element, dte.Variant, error) {
	rootPath := xmlutil.Path(root)
	version := root.SelectAttr("version")
	if version == nil {
		return nil, "", &domain.SchemaValidationError{Field: rootPath + "/@version", Code: domain.ViolationMissing}
	}
	if version.Value != sii.DTEVersion10 {
		return nil, "", &domain.SchemaValidationError{Field: rootPath + "/@version", Code: domain.ViolationOutOfRange, Value: version.Value}
	}

	var container *etree.Element
	var variant dte.Variant
	for _, c := range dteContainers {
		el := xmlutil.FindChild(root, c.tag, siiNamespaces...)
		if el == nil {
			continue
		}
		if container != nil {
			return nil, "", &domain.SchemaValidationError{
				Field: rootPath,
				Code:  domain.ViolationMutuallyExclusive,
				Err:   fmt.Errorf("%s y %s en el mismo DTE", container.Tag, el.Tag),
			}
		}
		container, variant = el, c.variant
	}
	if container == nil {
		return nil, "", &domain.SchemaValidationError{Field: rootPath + "/Documento", Code: domain.ViolationMissing}
	}
	return container, variant, nil
}

// parseDTE valida un elemento DTE (raíz o anidado en un AEC) y construye el registro L2.
func parseDTE(root *etree.Element) (dte.DteDataL2, error) {
	container, variant, err := dteVariant(root)
	if err != nil {
		return dte.DteDataL2{}, err
	}

	d := &dteDraft{variant: variant}
	scope := newScope(container)
	if err := scope.run(d.fields()); err != nil {
		return dte.DteDataL2{}, err
	}
	if err := newScope(root).run(d.signatureFields()); err != nil {
		return dte.DteDataL2{}, err
	}
	if err := d.crossChecks(scope.child("Encabezado/Totales"), scope.child("Encabezado/IdDoc")); err != nil {
		return dte.DteDataL2{}, err
	}

	if d.hasTasaIVA {
		d.l2.TasaIVA = decimal.NewNullDecimal(d.tasaIVA)
	}
	key, err := dte.NewDteNaturalKey(d.emisor, d.tipo, d.folio)
	if err != nil {
		return dte.DteDataL2{}, schemaError(scope.basePath, "", err)
	}
	l1, err := dte.NewDteDataL1(key, d.fchEmis, d.receptor, d.montoTotal)
	if err != nil {
		return dte.DteDataL2{}, schemaError(scope.basePath, "", err)
	}
	l2, err := dte.NewDteDataL2(variant, l1, d.l2)
	if err != nil {
		return dte.DteDataL2{}, schemaError(scope.basePath, "", err)
	}
	return l2, nil
}
