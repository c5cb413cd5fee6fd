package verification

import (
	"context"
	"fmt"
	"strings"
)

// ReportUseCase genera el informe PDF de verificación de un documento.
type ReportUseCase struct {
	service   *Service
	generator ReportGenerator
}

// NewReportUseCase construye el caso de uso inyectando sus dependencias.
func NewReportUseCase(service *Service, generator ReportGenerator) *ReportUseCase {
	return &ReportUseCase{service: service, generator: generator}
}

// Generate procesa raw y devuelve el PDF con su nombre de archivo. Una firma inválida
// también produce informe; los errores estructurales no.
func (uc *ReportUseCase) Generate(ctx context.Context, raw []byte, encodingHint string) (pdf []byte, filename string, err error) {
	res, err := uc.service.Process(ctx, raw, encodingHint)
	if err != nil {
		return nil, "", err
	}
	pdf, err = uc.generator.GenerateReport(ctx, res)
	if err != nil {
		return nil, "", fmt.Errorf("informe: %w", err)
	}
	return pdf, ReportFilename(res.Slug), nil
}

// ReportFilename convierte el slug en un nombre de archivo seguro.
func ReportFilename(slug string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r == '-':
			return r
		}
		return '_'
	}, slug)
	return "verificacion-" + name + ".pdf"
}
