package verification

import (
	"context"
	"errors"

	"github.com/secretline/lib-cl-sii-go/internal/domain"
)

// Outcome clasifica el desenlace de un documento para métricas, logs y la CLI.
type Outcome string

const (
	OutcomeAccepted    Outcome = "accepted"
	OutcomeRejected    Outcome = "signature_invalid"
	OutcomeTooLarge    Outcome = "too_large"
	OutcomeEncoding    Outcome = "encoding"
	OutcomeMalformed   Outcome = "malformed_xml"
	OutcomeUncleanable Outcome = "uncleanable"
	OutcomeSchema      Outcome = "schema"
	OutcomeCanceled    Outcome = "canceled"
	OutcomeInternal    Outcome = "internal"
)

// Classify devuelve el Outcome de un resultado o error del pipeline.
func Classify(res Result, err error) Outcome {
	switch {
	case err == nil && res.Accepted:
		return OutcomeAccepted
	case err == nil:
		return OutcomeRejected
	case errors.Is(err, domain.ErrDocumentTooLarge):
		return OutcomeTooLarge
	case errors.Is(err, domain.ErrEncoding):
		return OutcomeEncoding
	case errors.Is(err, domain.ErrMalformedXML):
		return OutcomeMalformed
	case errors.Is(err, domain.ErrUncleanableDocument):
		return OutcomeUncleanable
	case errors.Is(err, domain.ErrSchemaValidation):
		return OutcomeSchema
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	default:
		return OutcomeInternal
	}
}
