package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/secretline/lib-cl-sii-go/internal/application/dto"
	"github.com/secretline/lib-cl-sii-go/internal/application/verification"
	"github.com/secretline/lib-cl-sii-go/internal/domain"
)

// writeError traduce los errores del pipeline a status y cuerpo HTTP.
func writeError(c *fiber.Ctx, err error) error {
	status, body := errorResponse(err)
	return c.Status(status).JSON(body)
}

func errorResponse(err error) (int, dto.ErrorResponse) {
	var schemaErr *domain.SchemaValidationError
	switch {
	case errors.As(err, &schemaErr):
		return fiber.StatusUnprocessableEntity, dto.ErrorResponse{
			Code:    "SCHEMA_VALIDATION",
			Message: string(schemaErr.Code) + ": " + errMessage(schemaErr.Err),
			Field:   schemaErr.Field,
		}
	case errors.Is(err, domain.ErrDocumentTooLarge):
		return fiber.StatusRequestEntityTooLarge, dto.ErrorResponse{Code: "DOCUMENT_TOO_LARGE", Message: err.Error()}
	case errors.Is(err, domain.ErrEncoding):
		return fiber.StatusUnprocessableEntity, dto.ErrorResponse{Code: "ENCODING", Message: err.Error()}
	case errors.Is(err, domain.ErrMalformedXML):
		return fiber.StatusUnprocessableEntity, dto.ErrorResponse{Code: "MALFORMED_XML", Message: err.Error()}
	case errors.Is(err, domain.ErrUncleanableDocument):
		return fiber.StatusUnprocessableEntity, dto.ErrorResponse{Code: "UNRECOGNIZED_DOCUMENT", Message: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, dto.ErrorResponse{Code: "NOT_FOUND", Message: "verificación no encontrada"}
	case errors.Is(err, verification.ErrRegistryDisabled):
		return fiber.StatusNotImplemented, dto.ErrorResponse{Code: "REGISTRY_DISABLED", Message: err.Error()}
	default:
		return fiber.StatusInternalServerError, dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()}
	}
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
