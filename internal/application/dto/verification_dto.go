package dto

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/secretline/lib-cl-sii-go/internal/domain/entity"
)

// VerifyQuery parámetros de POST /api/v1/dte/verify y /report.
type VerifyQuery struct {
	Encoding string `query:"encoding"` // hint de codificación, ej. ISO-8859-1
}

// VerificationResponse verificación registrada, para GET /api/v1/dte/verifications/:slug.
type VerificationResponse struct {
	ID             string          `json:"id"`
	Slug           string          `json:"slug"`
	Variant        string          `json:"variant"`
	EmisorRut      string          `json:"emisor_rut"`
	TipoDTE        int             `json:"tipo_dte"`
	Folio          int64           `json:"folio"`
	MontoTotal     decimal.Decimal `json:"monto_total"`
	Accepted       bool            `json:"accepted"`
	Reason         string          `json:"reason,omitempty"`
	DocumentSHA256 string          `json:"document_sha256"`
	Record         json.RawMessage `json:"record"`
	Verdict        json.RawMessage `json:"verdict"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewVerificationResponse copia la entidad al DTO.
func NewVerificationResponse(v *entity.DTEVerification) VerificationResponse {
	return VerificationResponse{
		ID:             v.ID,
		Slug:           v.Slug,
		Variant:        v.Variant,
		EmisorRut:      v.EmisorRut,
		TipoDTE:        v.TipoDTE,
		Folio:          v.Folio,
		MontoTotal:     v.MontoTotal,
		Accepted:       v.Accepted,
		Reason:         v.Reason,
		DocumentSHA256: v.DocumentSHA256,
		Record:         v.Record,
		Verdict:        v.Verdict,
		CreatedAt:      v.CreatedAt,
		UpdatedAt:      v.UpdatedAt,
	}
}
