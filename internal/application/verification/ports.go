package verification

import (
	"context"
	"time"

	"github.com/secretline/lib-cl-sii-go/internal/domain/dte"
	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/sii/xmldsig"
)

// Metrics recibe el resultado de cada documento procesado. La implementación
// Prometheus vive en infrastructure/metrics.
type Metrics interface {
	ObserveDocument(outcome Outcome, variant dte.Variant, elapsed time.Duration)
	ObserveSignature(verdict xmldsig.Verdict)
}

// ReportGenerator arma la representación PDF de un resultado.
type ReportGenerator interface {
	GenerateReport(ctx context.Context, res Result) ([]byte, error)
}

type nopMetrics struct{}

func (nopMetrics) ObserveDocument(Outcome, dte.Variant, time.Duration) {}
func (nopMetrics) ObserveSignature(xmldsig.Verdict)                   {}
