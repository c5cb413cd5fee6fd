// Package sii contiene catálogos, constantes y validaciones alineados a los esquemas
// XML de Documentos Tributarios Electrónicos del SII (Chile).
package sii

import "fmt"

// =============================================================================
// Tipos de DTE (SiiTypes_v10.xsd - DTEType / DOCType)
// =============================================================================

// TipoDTE es el código numérico del tipo de documento.
type TipoDTE int

const (
	TipoFacturaElectronica       TipoDTE = 33
	TipoFacturaExentaElectronica TipoDTE = 34
	TipoBoletaElectronica        TipoDTE = 39
	TipoBoletaExentaElectronica  TipoDTE = 41
	TipoLiquidacionFactura       TipoDTE = 43
	TipoFacturaCompraElectronica TipoDTE = 46
	TipoGuiaDespachoElectronica  TipoDTE = 52
	TipoNotaDebitoElectronica    TipoDTE = 56
	TipoNotaCreditoElectronica   TipoDTE = 61
	TipoFacturaExportacion       TipoDTE = 110
	TipoNotaDebitoExportacion    TipoDTE = 111
	TipoNotaCreditoExportacion   TipoDTE = 112
)

var tipoDTENames = map[TipoDTE]string{
	TipoFacturaElectronica:       "Factura electrónica",
	TipoFacturaExentaElectronica: "Factura no afecta o exenta electrónica",
	TipoBoletaElectronica:        "Boleta electrónica",
	TipoBoletaExentaElectronica:  "Boleta exenta electrónica",
	TipoLiquidacionFactura:       "Liquidación factura electrónica",
	TipoFacturaCompraElectronica: "Factura de compra electrónica",
	TipoGuiaDespachoElectronica:  "Guía de despacho electrónica",
	TipoNotaDebitoElectronica:    "Nota de débito electrónica",
	TipoNotaCreditoElectronica:   "Nota de crédito electrónica",
	TipoFacturaExportacion:       "Factura de exportación electrónica",
	TipoNotaDebitoExportacion:    "Nota de débito de exportación electrónica",
	TipoNotaCreditoExportacion:   "Nota de crédito de exportación electrónica",
}

// ParseTipoDTE valida que el código pertenezca al catálogo.
func ParseTipoDTE(code int) (TipoDTE, error) {
	t := TipoDTE(code)
	if !t.Valid() {
		return 0, fmt.Errorf("sii: tipo DTE desconocido: %d", code)
	}
	return t, nil
}

func (t TipoDTE) Valid() bool {
	_, ok := tipoDTENames[t]
	return ok
}

func (t TipoDTE) String() string { return fmt.Sprintf("%d", int(t)) }

// Name devuelve la descripción del tipo o "" si no está en el catálogo.
func (t TipoDTE) Name() string { return tipoDTENames[t] }

// IsFactura indica si el documento es una factura (incluye compra, exportación y liquidación).
func (t TipoDTE) IsFactura() bool {
	switch t {
	case TipoFacturaElectronica, TipoFacturaExentaElectronica, TipoFacturaCompraElectronica,
		TipoLiquidacionFactura, TipoFacturaExportacion:
		return true
	}
	return false
}

// IsExenta indica los tipos que no pueden declarar IVA.
func (t TipoDTE) IsExenta() bool {
	switch t {
	case TipoFacturaExentaElectronica, TipoBoletaExentaElectronica, TipoFacturaExportacion:
		return true
	}
	return false
}

// IsExportacion indica los tipos que se emiten en el contenedor Exportaciones.
func (t TipoDTE) IsExportacion() bool {
	return t == TipoFacturaExportacion || t == TipoNotaDebitoExportacion || t == TipoNotaCreditoExportacion
}

// EmisorIsVendedor: en las facturas el emisor es quien vende, salvo en la factura de compra.
func (t TipoDTE) EmisorIsVendedor() bool {
	return t.IsFactura() && t != TipoFacturaCompraElectronica
}

// ReceptorIsVendedor: en la factura de compra el receptor es el vendedor.
func (t TipoDTE) ReceptorIsVendedor() bool {
	return t == TipoFacturaCompraElectronica
}

// TiposDTE devuelve el catálogo completo ordenado por código.
func TiposDTE() []TipoDTE {
	return []TipoDTE{
		TipoFacturaElectronica, TipoFacturaExentaElectronica, TipoBoletaElectronica,
		TipoBoletaExentaElectronica, TipoLiquidacionFactura, TipoFacturaCompraElectronica,
		TipoGuiaDespachoElectronica, TipoNotaDebitoElectronica, TipoNotaCreditoElectronica,
		TipoFacturaExportacion, TipoNotaDebitoExportacion, TipoNotaCreditoExportacion,
	}
}
