package verification

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/secretline/lib-cl-sii-go/internal/domain"
	"github.com/secretline/lib-cl-sii-go/internal/domain/dte"
	"github.com/secretline/lib-cl-sii-go/internal/domain/entity"
	"github.com/secretline/lib-cl-sii-go/internal/domain/repository"
	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/sii"
	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/sii/xmldsig"
	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/xmlutil"
	"github.com/secretline/lib-cl-sii-go/pkg/logger"
)

// ErrRegistryDisabled indica que el servicio se construyó sin repositorio.
var ErrRegistryDisabled = errors.New("registro de verificaciones deshabilitado")

// Options política del pipeline.
type Options struct {
	MaxDocumentBytes int
	Clean            sii.CleanOptions
	Concurrency      int // trabajadores de ProcessBatch
}

// Result es la salida del pipeline para un documento estructuralmente válido.
// Accepted exige que todas las firmas del documento sean válidas.
type Result struct {
	Accepted       bool               `json:"accepted"`
	Variant        dte.Variant        `json:"variant"`
	Slug           string             `json:"slug"`
	DocumentSHA256 string             `json:"document_sha256"`
	Record         dte.Record         `json:"record"`
	Verdict        xmldsig.Verdict    `json:"verdict"`
	Signatures     []xmldsig.Verdict  `json:"signatures,omitempty"` // AEC: todas las firmas anidadas
	Normalization  sii.NormalizedText `json:"normalization"`
	Cleaning       sii.CleanReport    `json:"cleaning"`
}

// Service orquesta normalizar → parsear → limpiar → validar + verificar.
// No guarda estado entre llamadas; es seguro para uso concurrente.
type Service struct {
	verifier *xmldsig.Verifier
	repo     repository.DTEVerificationRepository // opcional
	metrics  Metrics
	log      *logger.Logger
	opts     Options
}

// NewService construye el servicio. repo, metrics y log pueden ser nil.
func NewService(
	verifier *xmldsig.Verifier,
	repo repository.DTEVerificationRepository,
	metrics Metrics,
	log *logger.Logger,
	opts Options,
) *Service {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Service{verifier: verifier, repo: repo, metrics: metrics, log: log, opts: opts}
}

// Process ejecuta el pipeline completo sobre raw. Los errores estructurales
// (tamaño, encoding, XML, forma, modelo) abortan; una firma inválida no es error y
// queda en Result.Verdict. Si hay repositorio el resultado se registra por slug.
func (s *Service) Process(ctx context.Context, raw []byte, encodingHint string) (res Result, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveDocument(Classify(res, err), res.Variant, time.Since(start))
	}()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if s.opts.MaxDocumentBytes > 0 && len(raw) > s.opts.MaxDocumentBytes {
		s.log.Warn().Int("bytes", len(raw)).Int("max", s.opts.MaxDocumentBytes).Msg("documento rechazado por tamaño")
		return Result{}, fmt.Errorf("%w: %d bytes (máximo %d)", domain.ErrDocumentTooLarge, len(raw), s.opts.MaxDocumentBytes)
	}

	sum := sha256.Sum256(raw)
	digest := hex.EncodeToString(sum[:])
	log := s.log.Child(s.log.With().Str("sha256", digest[:16]))

	norm, err := sii.Normalize(raw, encodingHint)
	if err != nil {
		log.Warn().Err(err).Str("hint", encodingHint).Msg("documento rechazado: encoding")
		return Result{}, err
	}
	log.Debug().
		Int("bytes", len(raw)).
		Str("detected", norm.DetectedEncoding).
		Str("declared", norm.DeclaredEncoding).
		Strs("repairs", norm.Repairs).
		Msg("documento normalizado")

	doc, err := xmlutil.Parse(norm.Text)
	if err != nil {
		log.Warn().Err(err).Msg("documento rechazado: XML")
		return Result{}, err
	}

	cleaned, report, err := sii.Clean(doc, s.opts.Clean)
	if err != nil {
		log.Warn().Err(err).Msg("documento rechazado: forma")
		return Result{}, err
	}
	if report.Changed() {
		rules := make([]string, 0, len(report.Applied))
		for _, a := range report.Applied {
			rules = append(rules, a.Rule)
		}
		log.Debug().Strs("rules", rules).Msg("documento limpiado")
	}

	record, err := sii.Validate(cleaned)
	if err != nil {
		log.Warn().Err(err).Msg("documento rechazado: modelo de datos")
		return Result{}, err
	}

	res = Result{
		Variant:        record.Variant(),
		Slug:           record.Slug(),
		DocumentSHA256: digest,
		Record:         record,
		Normalization:  norm,
		Cleaning:       report,
	}

	res.Verdict, err = s.verifier.Verify(cleaned)
	var notFound *domain.SignatureNotFoundError
	switch {
	case errors.As(err, &notFound):
		res.Verdict, err = xmldsig.NotFoundVerdict(notFound), nil
	case err != nil:
		return Result{}, fmt.Errorf("verificar firma: %w", err)
	}
	s.metrics.ObserveSignature(res.Verdict)
	res.Accepted = res.Verdict.Valid

	if record.Variant() == dte.VariantAEC {
		all, err := s.verifier.VerifyAll(cleaned)
		if err != nil && !errors.As(err, &notFound) {
			return Result{}, fmt.Errorf("verificar firmas anidadas: %w", err)
		}
		for _, v := range all {
			if v.SignaturePath != res.Verdict.SignaturePath {
				s.metrics.ObserveSignature(v)
			}
		}
		// Las firmas ausentes de un AEC (DTE cedido, DTECedido o una cesión) también
		// invalidan el documento.
		for _, m := range sii.MissingSignatures(cleaned) {
			v := xmldsig.NotFoundVerdict(m)
			if v.SignaturePath != res.Verdict.SignaturePath {
				s.metrics.ObserveSignature(v)
				all = append(all, v)
			}
		}
		res.Signatures = all
		for _, v := range all {
			res.Accepted = res.Accepted && v.Valid
		}
	}

	ev := log.Debug()
	if !res.Accepted {
		ev = log.Warn()
	}
	ev.Str("variant", string(res.Variant)).
		Str("slug", res.Slug).
		Bool("accepted", res.Accepted).
		Str("reason", string(firstReason(res))).
		Msg("documento verificado")

	if s.repo != nil {
		if err := s.store(ctx, res); err != nil {
			log.Error().Err(err).Str("slug", res.Slug).Msg("registrar verificación")
			return res, fmt.Errorf("registrar verificación: %w", err)
		}
	}
	return res, nil
}

// firstReason es el motivo de la primera firma inválida.
func firstReason(res Result) xmldsig.Reason {
	if !res.Verdict.Valid {
		return res.Verdict.Reason
	}
	for _, v := range res.Signatures {
		if !v.Valid {
			return v.Reason
		}
	}
	return ""
}

func (s *Service) store(ctx context.Context, res Result) error {
	record, err := json.Marshal(res.Record)
	if err != nil {
		return fmt.Errorf("serializar registro: %w", err)
	}
	verdict, err := json.Marshal(res.Verdict)
	if err != nil {
		return fmt.Errorf("serializar veredicto: %w", err)
	}
	key := res.Record.NaturalKey()
	v := &entity.DTEVerification{
		Slug:           res.Slug,
		Variant:        string(res.Variant),
		EmisorRut:      key.EmisorRut.String(),
		TipoDTE:        int(key.TipoDTE),
		Folio:          key.Folio,
		MontoTotal:     decimal.NewFromInt(montoTotal(res.Record)),
		Accepted:       res.Accepted,
		Reason:         string(firstReason(res)),
		DocumentSHA256: res.DocumentSHA256,
		Record:         record,
		Verdict:        verdict,
	}
	return s.repo.Upsert(ctx, v)
}

// montoTotal del DTE; en un AEC, el monto de la última cesión.
func montoTotal(r dte.Record) int64 {
	switch rec := r.(type) {
	case dte.DteDataL2:
		return rec.MontoTotal
	case dte.AecXmlData:
		return rec.Monto()
	}
	return 0
}

// Get devuelve la verificación registrada para slug.
func (s *Service) Get(ctx context.Context, slug string) (*entity.DTEVerification, error) {
	if s.repo == nil {
		return nil, ErrRegistryDisabled
	}
	v, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("obtener verificación: %w", err)
	}
	if v == nil {
		return nil, domain.ErrNotFound
	}
	return v, nil
}
