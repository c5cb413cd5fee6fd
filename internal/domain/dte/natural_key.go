// Package dte define el modelo de datos de los Documentos Tributarios Electrónicos:
// clave natural, niveles L0/L1/L2 y el Archivo Electrónico de Cesión (AEC).
// Los registros son valores inmutables; sólo se construyen con validación.
package dte

import (
	"fmt"

	"github.com/secretline/lib-cl-sii-go/pkg/sii"
)

// DteNaturalKey identifica unívocamente un DTE: emisor, tipo y folio.
type DteNaturalKey struct {
	EmisorRut sii.Rut     `json:"emisor_rut"`
	TipoDTE   sii.TipoDTE `json:"tipo_dte"`
	Folio     int64       `json:"folio"`
}

// NewDteNaturalKey valida tipo y rango de folio.
func NewDteNaturalKey(emisor sii.Rut, tipo sii.TipoDTE, folio int64) (DteNaturalKey, error) {
	if err := validateRut("emisor_rut", emisor); err != nil {
		return DteNaturalKey{}, err
	}
	if !tipo.Valid() {
		return DteNaturalKey{}, fmt.Errorf("%w: tipo DTE %d", ErrOutOfRange, int(tipo))
	}
	if err := ValidateFolio(folio); err != nil {
		return DteNaturalKey{}, err
	}
	return DteNaturalKey{EmisorRut: emisor, TipoDTE: tipo, Folio: folio}, nil
}

// Slug es una representación de texto que preserva la unicidad: "{rut}--{tipo}--{folio}".
func (k DteNaturalKey) Slug() string {
	return fmt.Sprintf("%s--%d--%d", k.EmisorRut, int(k.TipoDTE), k.Folio)
}

func (k DteNaturalKey) String() string { return k.Slug() }

// NaturalKey permite que los niveles superiores expongan su clave con el mismo método.
func (k DteNaturalKey) NaturalKey() DteNaturalKey { return k }

// DteDataL0 contiene lo mínimo para identificar un DTE.
type DteDataL0 = DteNaturalKey
