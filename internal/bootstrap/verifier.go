// Package bootstrap arma las piezas del pipeline a partir de la configuración,
// compartido por cmd/api y cmd/dtecheck.
package bootstrap

import (
	"fmt"
	"time"

	"github.com/secretline/lib-cl-sii-go/internal/application/verification"
	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/sii"
	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/sii/xmldsig"
	"github.com/secretline/lib-cl-sii-go/pkg/config"
)

// NewVerifier construye el verificador de firmas. Sin TrustRootsPath se omite la
// validación de cadena, salvo que RequireTrustedChain lo impida.
func NewVerifier(cfg config.VerifierConfig) (*xmldsig.Verifier, error) {
	opts := xmldsig.Options{AllowSelfSigned: cfg.AllowSelfSigned}

	if cfg.SigningTimezone != "" {
		loc, err := time.LoadLocation(cfg.SigningTimezone)
		if err != nil {
			return nil, fmt.Errorf("zona horaria de firma %q: %w", cfg.SigningTimezone, err)
		}
		opts.Location = loc
	}

	switch {
	case cfg.TrustRootsPath != "":
		roots, err := xmldsig.LoadTrustStore(cfg.TrustRootsPath, cfg.TrustRootsPassword)
		if err != nil {
			return nil, fmt.Errorf("cargar raíces de confianza: %w", err)
		}
		opts.Roots = roots
	case cfg.RequireTrustedChain:
		return nil, fmt.Errorf("DTE_REQUIRE_TRUSTED_CHAIN sin DTE_TRUST_ROOTS_PATH")
	}
	return xmldsig.NewVerifier(opts), nil
}

// ServiceOptions traduce la configuración a las opciones del pipeline.
func ServiceOptions(cfg config.VerifierConfig) (verification.Options, error) {
	clean, err := sii.NewCleanOptions(cfg.CleanerEnabled, cfg.CleanerDisabled)
	if err != nil {
		return verification.Options{}, err
	}
	return verification.Options{
		MaxDocumentBytes: cfg.MaxDocumentBytes,
		Clean:            clean,
		Concurrency:      cfg.BatchConcurrency,
	}, nil
}
