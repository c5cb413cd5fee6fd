package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/secretline/lib-cl-sii-go/internal/domain"
	"github.com/secretline/lib-cl-sii-go/internal/domain/entity"
	"github.com/secretline/lib-cl-sii-go/internal/domain/repository"
)

var _ repository.DTEVerificationRepository = (*DTEVerificationRepo)(nil)

// DTEVerificationRepo implementa DTEVerificationRepository sobre PostgreSQL (pool o tx).
type DTEVerificationRepo struct {
	q Querier
}

// NewDTEVerificationRepository construye el repositorio.
func NewDTEVerificationRepository(q Querier) *DTEVerificationRepo {
	return &DTEVerificationRepo{q: q}
}

// Upsert reemplaza la verificación anterior del mismo slug y conserva su id y created_at.
func (r *DTEVerificationRepo) Upsert(ctx context.Context, v *entity.DTEVerification) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	const q = `
		INSERT INTO dte_verifications
			(id, slug, variant, emisor_rut, tipo_dte, folio, monto_total, accepted, reason,
			 document_sha256, record, verdict, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		ON CONFLICT (slug) DO UPDATE SET
			variant         = EXCLUDED.variant,
			monto_total     = EXCLUDED.monto_total,
			accepted        = EXCLUDED.accepted,
			reason          = EXCLUDED.reason,
			document_sha256 = EXCLUDED.document_sha256,
			record          = EXCLUDED.record,
			verdict         = EXCLUDED.verdict,
			updated_at      = now()
		RETURNING id, created_at, updated_at`
	err := r.q.QueryRow(ctx, q,
		v.ID, v.Slug, v.Variant, v.EmisorRut, v.TipoDTE, v.Folio, v.MontoTotal,
		v.Accepted, nullIfEmpty(v.Reason), v.DocumentSHA256, v.Record, v.Verdict,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("upsert dte_verification: %w", domain.ErrDuplicate)
		}
		return fmt.Errorf("upsert dte_verification: %w", err)
	}
	return nil
}

// GetBySlug devuelve nil, nil si el slug no está registrado.
func (r *DTEVerificationRepo) GetBySlug(ctx context.Context, slug string) (*entity.DTEVerification, error) {
	const q = `
		SELECT id, slug, variant, emisor_rut, tipo_dte, folio, monto_total, accepted,
		       COALESCE(reason, ''), document_sha256, record, verdict, created_at, updated_at
		FROM dte_verifications WHERE slug = $1`
	v, err := scanVerification(r.q.QueryRow(ctx, q, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get dte_verification by slug: %w", err)
	}
	return v, nil
}

func scanVerification(row pgxScanner) (*entity.DTEVerification, error) {
	var v entity.DTEVerification
	err := row.Scan(
		&v.ID, &v.Slug, &v.Variant, &v.EmisorRut, &v.TipoDTE, &v.Folio, &v.MontoTotal,
		&v.Accepted, &v.Reason, &v.DocumentSHA256, &v.Record, &v.Verdict,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
