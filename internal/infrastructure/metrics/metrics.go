// Package metrics expone en Prometheus el desenlace de las verificaciones de DTE.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/secretline/lib-cl-sii-go/internal/application/verification"
	"github.com/secretline/lib-cl-sii-go/internal/domain/dte"
	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/sii/xmldsig"
)

var _ verification.Metrics = (*Metrics)(nil)

// Metrics implementa verification.Metrics.
type Metrics struct {
	// Documentos por desenlace y variante
	Documents *prometheus.CounterVec

	// Latencia del pipeline completo
	Duration *prometheus.HistogramVec

	// Firmas verificadas por resultado (valid o el Reason de la falla)
	Signatures *prometheus.CounterVec

	// Algoritmos de firma observados, para seguir el uso de SHA-1
	SignatureMethods *prometheus.CounterVec
}

// New registra las métricas en reg. Cada registro admite una sola instancia.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Documents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dte_documents_total",
			Help: "Documentos procesados por desenlace y variante",
		}, []string{"outcome", "variant"}),

		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dte_pipeline_duration_seconds",
			Help:    "Duración de normalizar, parsear, limpiar, validar y verificar un documento",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"outcome"}),

		Signatures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dte_signatures_total",
			Help: "Firmas XML-DSig verificadas por resultado",
		}, []string{"result"}),

		SignatureMethods: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dte_signature_methods_total",
			Help: "Firmas verificadas por SignatureMethod declarado",
		}, []string{"method"}),
	}
}

// ObserveDocument registra el desenlace y la latencia de un documento.
func (m *Metrics) ObserveDocument(outcome verification.Outcome, variant dte.Variant, elapsed time.Duration) {
	if m == nil {
		return
	}
	v := string(variant)
	if v == "" {
		v = "unknown"
	}
	m.Documents.WithLabelValues(string(outcome), v).Inc()
	m.Duration.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
}

// ObserveSignature registra el resultado de un bloque ds:Signature.
func (m *Metrics) ObserveSignature(v xmldsig.Verdict) {
	if m == nil {
		return
	}
	result := "valid"
	if !v.Valid {
		result = string(v.Reason)
	}
	m.Signatures.WithLabelValues(result).Inc()
	if v.SignatureMethod != "" {
		m.SignatureMethods.WithLabelValues(v.SignatureMethod).Inc()
	}
}
