package repository

import (
	"context"

	"github.com/secretline/lib-cl-sii-go/internal/domain/entity"
)

// DTEVerificationRepository define el puerto de persistencia del registro de verificaciones.
type DTEVerificationRepository interface {
	// Upsert inserta o reemplaza la verificación del slug. Completa ID y timestamps.
	Upsert(ctx context.Context, v *entity.DTEVerification) error
	// GetBySlug devuelve nil, nil si no existe.
	GetBySlug(ctx context.Context, slug string) (*entity.DTEVerification, error)
}
