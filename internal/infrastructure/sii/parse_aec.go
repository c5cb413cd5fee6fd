package sii

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/secretline/lib-cl-sii-go/internal/domain"
	"github.com/secretline/lib-cl-sii-go/internal/domain/dte"
	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/xmlutil"
	"github.com/secretline/lib-cl-sii-go/pkg/sii"
)

// Archivo Electrónico de Cesión (AEC): Caratula, el DTE cedido y 1..N cesiones.
//
//	AEC/DocumentoAEC/Caratula
//	AEC/DocumentoAEC/Cesiones/DTECedido/DocumentoDTECedido/DTE
//	AEC/DocumentoAEC/Cesiones/Cesion/DocumentoCesion (una por cesión)

func parseAEC(root *etree.Element) (dte.AecXmlData, error) {
	rootPath := xmlutil.Path(root)
	version := root.SelectAttr("version")
	if version == nil {
		return dte.AecXmlData{}, &domain.SchemaValidationError{Field: rootPath + "/@version", Code: domain.ViolationMissing}
	}
	if version.Value != sii.AECVersion10 {
		return dte.AecXmlData{}, &domain.SchemaValidationError{Field: rootPath + "/@version", Code: domain.ViolationOutOfRange, Value: version.Value}
	}

	documento := newScope(root).child("DocumentoAEC")
	var aec dte.AecXmlData
	caratula := []field{
		{path: "Caratula/RutCedente", required: true, set: setRut(&aec.CedenteRut)},
		{path: "Caratula/RutCesionario", required: true, set: setRut(&aec.CesionarioRut)},
		{path: "Caratula/NmbContacto", set: setOptionalText(&aec.ContactoNombre, 0)},
		{path: "Caratula/FonoContacto", set: setOptionalText(&aec.ContactoTelefono, 0)},
		{path: "Caratula/MailContacto", set: setOptionalText(&aec.ContactoEmail, 0)},
		{path: "Caratula/TmstFirmaEnvio", required: true, set: setTimestamp(&aec.FechaFirma)},
	}
	if err := documento.run(caratula); err != nil {
		return dte.AecXmlData{}, err
	}

	cedido := documento.child("Cesiones/DTECedido/DocumentoDTECedido/DTE")
	if cedido.base == nil {
		return dte.AecXmlData{}, &domain.SchemaValidationError{Field: cedido.basePath, Code: domain.ViolationMissing}
	}
	dteData, err := parseDTE(cedido.base)
	if err != nil {
		return dte.AecXmlData{}, err
	}
	aec.Dte = dteData

	cesionesScope := documento.child("Cesiones")
	cesionEls := xmlutil.FindChildren(cesionesScope.base, "Cesion", siiNamespaces...)
	if len(cesionEls) == 0 {
		return dte.AecXmlData{}, &domain.SchemaValidationError{Field: cesionesScope.join("Cesion"), Code: domain.ViolationMissing}
	}

	cesiones := make([]dte.AecXmlCesionData, 0, len(cesionEls))
	for i, el := range cesionEls {
		scope := fieldScope{
			base:     xmlutil.FindChild(el, "DocumentoCesion", siiNamespaces...),
			basePath: fmt.Sprintf("%s/Cesion[%d]/DocumentoCesion", cesionesScope.basePath, i+1),
		}
		c, err := parseCesion(scope, i+1)
		if err != nil {
			return dte.AecXmlData{}, err
		}
		if c.Dte.DteNaturalKey != aec.Dte.DteNaturalKey {
			return dte.AecXmlData{}, &domain.SchemaValidationError{
				Field: scope.join("IdDTE"),
				Code:  domain.ViolationMutuallyExclusive,
				Value: c.Dte.Slug(),
				Err:   fmt.Errorf("la cesión no corresponde al DTE cedido %s", aec.Dte.Slug()),
			}
		}
		cesiones = append(cesiones, c)
	}

	last := cesiones[len(cesiones)-1]
	if last.CedenteRut != aec.CedenteRut || last.CesionarioRut != aec.CesionarioRut {
		return dte.AecXmlData{}, &domain.SchemaValidationError{
			Field: documento.join("Caratula"),
			Code:  domain.ViolationMutuallyExclusive,
			Err:   fmt.Errorf("cedente/cesionario de la carátula difieren de la última cesión"),
		}
	}

	out, err := dte.NewAecXmlData(aec, cesiones)
	if err != nil {
		return dte.AecXmlData{}, schemaError(documento.basePath, "", err)
	}
	return out, nil
}

func parseCesion(scope fieldScope, position int) (dte.AecXmlCesionData, error) {
	var (
		c        dte.AecXmlCesionData
		tipo     sii.TipoDTE
		emisor   sii.Rut
		receptor sii.Rut
		folio    int64
		fchEmis  sii.Date
		total    int64
	)
	fields := []field{
		{path: "SeqCesion", required: true, set: func(v string) error {
			n, err := parseSIIInt(v)
			if err != nil {
				return err
			}
			if n < sii.CesionSeqMinValue || n != int64(position) {
				return outOfRange(fmt.Errorf("%w: seq %d en la posición %d", dte.ErrOutOfRange, n, position))
			}
			c.Seq = n
			return nil
		}},
		{path: "IdDTE/TipoDTE", required: true, set: func(v string) (err error) {
			tipo, err = parseTipoDTE(v)
			return err
		}},
		{path: "IdDTE/RUTEmisor", required: true, set: setRut(&emisor)},
		{path: "IdDTE/RUTReceptor", required: true, set: setRut(&receptor)},
		{path: "IdDTE/Folio", required: true, set: setFolio(&folio)},
		{path: "IdDTE/FchEmis", required: true, set: setDate(&fchEmis)},
		{path: "IdDTE/MntTotal", required: true, set: setMonto(&total)},
		{path: "Cedente/RUT", required: true, set: setRut(&c.CedenteRut)},
		{path: "Cedente/RazonSocial", required: true, set: setRazonSocial(&c.CedenteRazonSocial)},
		{path: "Cedente/Direccion", required: true, set: setRequiredText(&c.CedenteDireccion)},
		{path: "Cedente/eMail", required: true, set: setRequiredText(&c.CedenteEmail)},
		{path: "Cedente/DeclaracionJurada", set: setOptionalText(&c.CedenteDeclaracionJurada, 0)},
		{path: "Cesionario/RUT", required: true, set: setRut(&c.CesionarioRut)},
		{path: "Cesionario/RazonSocial", required: true, set: setRazonSocial(&c.CesionarioRazonSocial)},
		{path: "Cesionario/Direccion", required: true, set: setRequiredText(&c.CesionarioDireccion)},
		{path: "Cesionario/eMail", required: true, set: setRequiredText(&c.CesionarioEmail)},
		{path: "MontoCesion", required: true, set: setMonto(&c.Monto)},
		{path: "UltimoVencimiento", required: true, set: setDate(&c.UltimoVencimiento)},
		{path: "TmstCesion", required: true, set: setTimestamp(&c.FechaCesion)},
		{path: "eMailDeudor", set: setOptionalText(&c.DteDeudorEmail, 0)},
	}
	if err := scope.run(fields); err != nil {
		return dte.AecXmlCesionData{}, err
	}

	key, err := dte.NewDteNaturalKey(emisor, tipo, folio)
	if err != nil {
		return dte.AecXmlCesionData{}, schemaError(scope.join("IdDTE"), "", err)
	}
	c.Dte, err = dte.NewDteDataL1(key, fchEmis, receptor, total)
	if err != nil {
		return dte.AecXmlCesionData{}, schemaError(scope.join("IdDTE"), "", err)
	}
	out, err := dte.NewAecXmlCesionData(c)
	if err != nil {
		return dte.AecXmlCesionData{}, schemaError(scope.basePath, "", err)
	}
	return out, nil
}
