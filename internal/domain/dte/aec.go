package dte

import (
	"encoding/json"
	"fmt"

	"github.com/secretline/lib-cl-sii-go/pkg/sii"
)

// AecXmlCesionData es una "cesión" (elemento Cesion) dentro de un AEC.
type AecXmlCesionData struct {
	Dte                   DteDataL1         `json:"dte"`
	Seq                   int64             `json:"seq"`
	CedenteRut            sii.Rut           `json:"cedente_rut"`
	CesionarioRut         sii.Rut           `json:"cesionario_rut"`
	Monto                 int64             `json:"monto"`
	FechaCesion           sii.NaiveDateTime `json:"fecha_cesion_dt_naive"`
	UltimoVencimiento     sii.Date          `json:"ultimo_vencimiento_date"`
	CedenteRazonSocial    string            `json:"cedente_razon_social"`
	CedenteDireccion      string            `json:"cedente_direccion"`
	CedenteEmail          string            `json:"cedente_email"`
	CesionarioRazonSocial string            `json:"cesionario_razon_social"`
	CesionarioDireccion   string            `json:"cesionario_direccion"`
	CesionarioEmail       string            `json:"cesionario_email"`
	DteDeudorEmail        string            `json:"dte_deudor_email,omitempty"`

	// Texto de la declaración jurada del cedente, si viene.
	CedenteDeclaracionJurada string `json:"cedente_declaracion_jurada,omitempty"`
}

// NewAecXmlCesionData valida secuencia, monto y los textos obligatorios de la cesión.
func NewAecXmlCesionData(c AecXmlCesionData) (AecXmlCesionData, error) {
	if c.Seq < sii.CesionSeqMinValue {
		return AecXmlCesionData{}, fmt.Errorf("%w: seq %d", ErrOutOfRange, c.Seq)
	}
	if c.Monto < sii.CesionMontoMinValue {
		return AecXmlCesionData{}, fmt.Errorf("%w: monto %d", ErrOutOfRange, c.Monto)
	}
	if err := validateRut("cedente_rut", c.CedenteRut); err != nil {
		return AecXmlCesionData{}, err
	}
	if err := validateRut("cesionario_rut", c.CesionarioRut); err != nil {
		return AecXmlCesionData{}, err
	}
	if c.FechaCesion.IsZero() {
		return AecXmlCesionData{}, fmt.Errorf("%w: fecha_cesion_dt_naive", ErrEmptyValue)
	}
	texts := []struct {
		name  string
		value string
	}{
		{"cedente_razon_social", c.CedenteRazonSocial},
		{"cedente_direccion", c.CedenteDireccion},
		{"cedente_email", c.CedenteEmail},
		{"cesionario_razon_social", c.CesionarioRazonSocial},
		{"cesionario_direccion", c.CesionarioDireccion},
		{"cesionario_email", c.CesionarioEmail},
	}
	for _, t := range texts {
		if err := validateCleanString(t.value, 0); err != nil {
			return AecXmlCesionData{}, fmt.Errorf("%s: %w", t.name, err)
		}
	}
	if err := validateOptionalString(c.DteDeudorEmail, 0); err != nil {
		return AecXmlCesionData{}, fmt.Errorf("dte_deudor_email: %w", err)
	}
	return c, nil
}

// Slug de la cesión: "{slug del DTE}--{seq}".
func (c AecXmlCesionData) Slug() string {
	return fmt.Sprintf("%s--%d", c.Dte.Slug(), c.Seq)
}

// AecXmlData es el contenido de un Archivo Electrónico de Cesión.
// Las cesiones se guardan en un slice privado; Cesiones devuelve una copia.
type AecXmlData struct {
	Dte              DteDataL2
	CedenteRut       sii.Rut
	CesionarioRut    sii.Rut
	FechaFirma       sii.NaiveDateTime
	ContactoNombre   string
	ContactoTelefono string
	ContactoEmail    string

	cesiones []AecXmlCesionData
}

// NewAecXmlData exige al menos una cesión y que vengan ordenadas por seq (1..n).
func NewAecXmlData(d AecXmlData, cesiones []AecXmlCesionData) (AecXmlData, error) {
	if len(cesiones) == 0 {
		return AecXmlData{}, fmt.Errorf("%w: el AEC no trae cesiones", ErrEmptyValue)
	}
	for i, c := range cesiones {
		if c.Seq != int64(i+1) {
			return AecXmlData{}, fmt.Errorf("%w: cesión en posición %d tiene seq %d", ErrOutOfRange, i+1, c.Seq)
		}
	}
	if err := validateRut("cedente_rut", d.CedenteRut); err != nil {
		return AecXmlData{}, err
	}
	if err := validateRut("cesionario_rut", d.CesionarioRut); err != nil {
		return AecXmlData{}, err
	}
	if d.FechaFirma.IsZero() {
		return AecXmlData{}, fmt.Errorf("%w: fecha_firma_dt_naive", ErrEmptyValue)
	}
	d.cesiones = append([]AecXmlCesionData(nil), cesiones...)
	return d, nil
}

func (a AecXmlData) Cesiones() []AecXmlCesionData {
	return append([]AecXmlCesionData(nil), a.cesiones...)
}

func (a AecXmlData) lastCesion() AecXmlCesionData {
	if len(a.cesiones) == 0 {
		return AecXmlCesionData{}
	}
	return a.cesiones[len(a.cesiones)-1]
}

// Seq y Monto corresponden a la última cesión, que es la que el AEC formaliza.
func (a AecXmlData) Seq() int64                  { return a.lastCesion().Seq }
func (a AecXmlData) Monto() int64                { return a.lastCesion().Monto }
func (a AecXmlData) UltimoVencimiento() sii.Date { return a.lastCesion().UltimoVencimiento }

func (a AecXmlData) Variant() Variant          { return VariantAEC }
func (a AecXmlData) NaturalKey() DteNaturalKey { return a.Dte.DteNaturalKey }
func (a AecXmlData) Slug() string              { return a.lastCesion().Slug() }
func (AecXmlData) record()                     {}

type aecJSON struct {
	Variant          Variant            `json:"variant"`
	Dte              DteDataL2          `json:"dte"`
	CedenteRut       sii.Rut            `json:"cedente_rut"`
	CesionarioRut    sii.Rut            `json:"cesionario_rut"`
	FechaFirma       sii.NaiveDateTime  `json:"fecha_firma_dt_naive"`
	ContactoNombre   string             `json:"contacto_nombre,omitempty"`
	ContactoTelefono string             `json:"contacto_telefono,omitempty"`
	ContactoEmail    string             `json:"contacto_email,omitempty"`
	Cesiones         []AecXmlCesionData `json:"cesiones"`
}

func (a AecXmlData) MarshalJSON() ([]byte, error) {
	return json.Marshal(aecJSON{
		Variant:          VariantAEC,
		Dte:              a.Dte,
		CedenteRut:       a.CedenteRut,
		CesionarioRut:    a.CesionarioRut,
		FechaFirma:       a.FechaFirma,
		ContactoNombre:   a.ContactoNombre,
		ContactoTelefono: a.ContactoTelefono,
		ContactoEmail:    a.ContactoEmail,
		Cesiones:         a.cesiones,
	})
}
