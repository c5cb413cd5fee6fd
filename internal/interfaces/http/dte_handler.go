package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/secretline/lib-cl-sii-go/internal/application/dto"
	"github.com/secretline/lib-cl-sii-go/internal/application/verification"
)

// DTEHandler expone el pipeline de verificación de DTE y AEC.
type DTEHandler struct {
	service *verification.Service
	report  *verification.ReportUseCase
}

// NewDTEHandler construye el handler.
func NewDTEHandler(service *verification.Service, report *verification.ReportUseCase) *DTEHandler {
	return &DTEHandler{service: service, report: report}
}

// Verify godoc
// @Summary      Verificar un DTE o AEC
// @Description  Normaliza la codificación, parsea sin DTD ni entidades, limpia defectos
//               conocidos, valida el modelo de datos y verifica la firma XML-DSig.
//               Una firma inválida responde 200 con accepted=false.
// @Tags         dte
// @Security     Bearer
// @Accept       application/xml
// @Produce      json
// @Param        encoding  query  string  false  "Hint de codificación (ej. ISO-8859-1)"
// @Success      200  {object}  verification.Result
// @Failure      401  {object}  dto.ErrorResponse
// @Failure      413  {object}  dto.ErrorResponse
// @Failure      422  {object}  dto.ErrorResponse
// @Router       /api/v1/dte/verify [post]
func (h *DTEHandler) Verify(c *fiber.Ctx) error {
	var q dto.VerifyQuery
	if err := c.QueryParser(&q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_QUERY", Message: "parámetros inválidos"})
	}
	res, err := h.service.Process(c.UserContext(), c.Body(), q.Encoding)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

// Report godoc
// @Summary      Informe PDF de verificación
// @Tags         dte
// @Security     Bearer
// @Accept       application/xml
// @Produce      application/pdf
// @Param        encoding  query  string  false  "Hint de codificación"
// @Success      200
// @Failure      413  {object}  dto.ErrorResponse
// @Failure      422  {object}  dto.ErrorResponse
// @Router       /api/v1/dte/report [post]
func (h *DTEHandler) Report(c *fiber.Ctx) error {
	var q dto.VerifyQuery
	if err := c.QueryParser(&q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_QUERY", Message: "parámetros inválidos"})
	}
	pdf, filename, err := h.report.Generate(c.UserContext(), c.Body(), q.Encoding)
	if err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Send(pdf)
}

// GetVerification godoc
// @Summary      Verificación registrada por slug
// @Tags         dte
// @Security     Bearer
// @Produce      json
// @Param        slug  path  string  true  "Slug {rut}--{tipo}--{folio}"
// @Success      200  {object}  dto.VerificationResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      501  {object}  dto.ErrorResponse
// @Router       /api/v1/dte/verifications/{slug} [get]
func (h *DTEHandler) GetVerification(c *fiber.Ctx) error {
	slug := c.Params("slug")
	if slug == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "slug requerido"})
	}
	v, err := h.service.Get(c.UserContext(), slug)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.NewVerificationResponse(v))
}
