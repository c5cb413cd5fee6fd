package entity

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// DTEVerification es el registro persistido de una verificación, uno por slug.
// Una nueva verificación del mismo documento reemplaza la anterior.
type DTEVerification struct {
	ID             string
	Slug           string // "{rut}--{tipo}--{folio}" o, para AEC, "...--{seq}"
	Variant        string
	EmisorRut      string
	TipoDTE        int
	Folio          int64
	MontoTotal     decimal.Decimal
	Accepted       bool
	Reason         string          // vacío si la firma es válida
	DocumentSHA256 string          // hash de los bytes recibidos
	Record         json.RawMessage // dte.Record serializado
	Verdict        json.RawMessage
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
