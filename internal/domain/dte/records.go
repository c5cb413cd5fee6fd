package dte

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/secretline/lib-cl-sii-go/pkg/sii"
)

// Variant es el discriminador cerrado de formas de documento soportadas.
// Agregar una versión nueva implica agregar una variante y su tabla de campos.
type Variant string

const (
	VariantDocumento     Variant = "DTE/Documento/1.0"
	VariantExportaciones Variant = "DTE/Exportaciones/1.0"
	VariantLiquidacion   Variant = "DTE/Liquidacion/1.0"
	VariantAEC           Variant = "AEC/DocumentoAEC/1.0"
)

// Record es el resultado del validador: una de las variantes cerradas de este paquete.
type Record interface {
	Variant() Variant
	NaturalKey() DteNaturalKey
	Slug() string
	record()
}

// OptionalInt es un entero opcional por valor (el cero de Go no implica ausencia).
type OptionalInt struct {
	Value int64
	Valid bool
}

func SomeInt(v int64) OptionalInt { return OptionalInt{Value: v, Valid: true} }

func (o OptionalInt) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(o.Value, 10)), nil
}

func (o *OptionalInt) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*o = OptionalInt{}
		return nil
	}
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*o = SomeInt(v)
	return nil
}

// DteDataL1 es el conjunto mínimo útil de datos de un DTE (el que pide el SII para
// confirmar que un documento existe).
type DteDataL1 struct {
	DteNaturalKey
	FechaEmision sii.Date `json:"fecha_emision_date"`
	ReceptorRut  sii.Rut  `json:"receptor_rut"`
	MontoTotal   int64    `json:"monto_total"`
}

func NewDteDataL1(key DteNaturalKey, fechaEmision sii.Date, receptor sii.Rut, montoTotal int64) (DteDataL1, error) {
	if _, err := NewDteNaturalKey(key.EmisorRut, key.TipoDTE, key.Folio); err != nil {
		return DteDataL1{}, err
	}
	if fechaEmision.IsZero() {
		return DteDataL1{}, fmt.Errorf("%w: fecha_emision_date", ErrEmptyValue)
	}
	if err := validateRut("receptor_rut", receptor); err != nil {
		return DteDataL1{}, err
	}
	if err := ValidateMontoTotal(montoTotal); err != nil {
		return DteDataL1{}, err
	}
	return DteDataL1{DteNaturalKey: key, FechaEmision: fechaEmision, ReceptorRut: receptor, MontoTotal: montoTotal}, nil
}

var ErrNotFactura = errors.New("el tipo de DTE no es una factura")

// VendedorRut devuelve el RUT de quien vende; sólo tiene sentido para facturas.
func (d DteDataL1) VendedorRut() (sii.Rut, error) {
	switch {
	case d.TipoDTE.EmisorIsVendedor():
		return d.EmisorRut, nil
	case d.TipoDTE.ReceptorIsVendedor():
		return d.ReceptorRut, nil
	}
	return sii.Rut{}, fmt.Errorf("%w: %d", ErrNotFactura, int(d.TipoDTE))
}

// DeudorRut devuelve el RUT de quien debe pagar la factura.
func (d DteDataL1) DeudorRut() (sii.Rut, error) {
	switch {
	case d.TipoDTE.EmisorIsVendedor():
		return d.ReceptorRut, nil
	case d.TipoDTE.ReceptorIsVendedor():
		return d.EmisorRut, nil
	}
	return sii.Rut{}, fmt.Errorf("%w: %d", ErrNotFactura, int(d.TipoDTE))
}

// L2Fields son los campos de nivel 2 que se agregan sobre DteDataL1.
type L2Fields struct {
	EmisorRazonSocial   string              `json:"emisor_razon_social"`
	ReceptorRazonSocial string              `json:"receptor_razon_social"`
	FechaVencimiento    sii.Date            `json:"fecha_vencimiento_date"`
	EmisorGiro          string              `json:"emisor_giro,omitempty"`
	EmisorEmail         string              `json:"emisor_email,omitempty"`
	ReceptorEmail       string              `json:"receptor_email,omitempty"`
	MontoNeto           OptionalInt         `json:"monto_neto"`
	MontoExento         OptionalInt         `json:"monto_exento"`
	TasaIVA             decimal.NullDecimal `json:"tasa_iva"`
	IVA                 OptionalInt         `json:"iva"`

	// FirmaDocumento es TmstFirma: reloj local del emisor, sin offset.
	FirmaDocumento        sii.NaiveDateTime `json:"firma_documento_dt_naive"`
	SignatureValueBase64  string            `json:"signature_value_base64"`
	SignatureDigestBase64 string            `json:"signature_digest_base64"`
	SignatureX509CertPEM  string            `json:"signature_x509_cert_pem"`
}

// DteDataL2 es el DTE completo tal como lo entrega el validador del XML.
type DteDataL2 struct {
	DteDataL1
	L2Fields
	DocumentVariant Variant `json:"variant"`
}

// NewDteDataL2 valida los campos de nivel 2. El validador del XML reporta violaciones
// con ruta y código antes de llegar aquí; este constructor protege a los demás llamadores.
func NewDteDataL2(variant Variant, l1 DteDataL1, f L2Fields) (DteDataL2, error) {
	switch variant {
	case VariantDocumento, VariantExportaciones, VariantLiquidacion:
	default:
		return DteDataL2{}, fmt.Errorf("%w: variante %q", ErrInvalidType, variant)
	}
	if _, err := NewDteDataL1(l1.DteNaturalKey, l1.FechaEmision, l1.ReceptorRut, l1.MontoTotal); err != nil {
		return DteDataL2{}, err
	}
	if err := ValidateRazonSocial(f.EmisorRazonSocial); err != nil {
		return DteDataL2{}, fmt.Errorf("emisor_razon_social: %w", err)
	}
	if err := ValidateRazonSocial(f.ReceptorRazonSocial); err != nil {
		return DteDataL2{}, fmt.Errorf("receptor_razon_social: %w", err)
	}
	if err := validateOptionalString(f.EmisorGiro, sii.GiroMaxLength); err != nil {
		return DteDataL2{}, fmt.Errorf("emisor_giro: %w", err)
	}
	montos := []struct {
		name string
		v    OptionalInt
	}{{"monto_neto", f.MontoNeto}, {"monto_exento", f.MontoExento}, {"iva", f.IVA}}
	for _, m := range montos {
		if m.v.Valid {
			if err := ValidateMontoTotal(m.v.Value); err != nil {
				return DteDataL2{}, fmt.Errorf("%s: %w", m.name, err)
			}
		}
	}
	if f.FirmaDocumento.IsZero() {
		return DteDataL2{}, fmt.Errorf("%w: firma_documento_dt_naive", ErrEmptyValue)
	}
	if !f.FechaVencimiento.IsZero() && f.FechaVencimiento.Before(l1.FechaEmision) {
		return DteDataL2{}, fmt.Errorf("%w: fecha_vencimiento_date anterior a fecha_emision_date", ErrOutOfRange)
	}
	return DteDataL2{DteDataL1: l1, L2Fields: f, DocumentVariant: variant}, nil
}

func (d DteDataL2) Variant() Variant { return d.DocumentVariant }
func (d DteDataL2) Slug() string     { return d.DteNaturalKey.Slug() }
func (DteDataL2) record()            {}

// L1 descarta los campos de nivel 2.
func (d DteDataL2) L1() DteDataL1 { return d.DteDataL1 }
