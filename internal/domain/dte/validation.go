package dte

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/secretline/lib-cl-sii-go/pkg/sii"
)

// Errores de valor reutilizados por el validador del XML para clasificar violaciones.
var (
	ErrOutOfRange   = errors.New("valor fuera de rango")
	ErrEmptyValue   = errors.New("valor vacío")
	ErrUncleanValue = errors.New("valor con espacios al inicio o al final")
	ErrTooLong      = errors.New("valor excede el largo máximo")
	ErrInvalidType  = errors.New("tipo de valor inválido")
)

// ValidateFolio verifica el rango del folio (FolioType).
func ValidateFolio(folio int64) error {
	if folio < sii.DTEFolioMinValue || folio > sii.DTEFolioMaxValue {
		return fmt.Errorf("%w: folio %d fuera de [%d, %d]", ErrOutOfRange, folio, sii.DTEFolioMinValue, sii.DTEFolioMaxValue)
	}
	return nil
}

// ValidateMontoTotal verifica que el monto sea un entero no negativo de hasta 18 dígitos.
func ValidateMontoTotal(monto int64) error {
	if monto < sii.DTEMontoTotalMinValue || monto > sii.DTEMontoTotalMaxValue {
		return fmt.Errorf("%w: monto %d", ErrOutOfRange, monto)
	}
	return nil
}

// ValidateRazonSocial aplica las reglas de "razón social" de un contribuyente.
func ValidateRazonSocial(value string) error {
	return validateCleanString(value, sii.RazonSocialLongMaxLength)
}

// validateCleanString: sin espacios en los extremos, no vacío y con largo acotado (0 = sin límite).
func validateCleanString(value string, maxLen int) error {
	if strings.TrimSpace(value) != value {
		return ErrUncleanValue
	}
	if value == "" {
		return ErrEmptyValue
	}
	if maxLen > 0 && utf8.RuneCountInString(value) > maxLen {
		return fmt.Errorf("%w: %d > %d", ErrTooLong, utf8.RuneCountInString(value), maxLen)
	}
	return nil
}

// validateOptionalString acepta "" como ausente.
func validateOptionalString(value string, maxLen int) error {
	if value == "" {
		return nil
	}
	return validateCleanString(value, maxLen)
}

func validateRut(field string, r sii.Rut) error {
	if r.IsZero() {
		return fmt.Errorf("%w: %s vacío", ErrEmptyValue, field)
	}
	return nil
}
