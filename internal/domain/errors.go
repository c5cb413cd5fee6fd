package domain

import (
	"errors"
	"fmt"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound  = errors.New("recurso no encontrado")
	ErrDuplicate = errors.New("recurso duplicado")

	ErrDocumentTooLarge     = errors.New("documento excede el tamaño máximo permitido")
	ErrEncoding             = errors.New("no se pudo decodificar el documento")
	ErrMalformedXML         = errors.New("XML mal formado")
	ErrUncleanableDocument  = errors.New("documento con estructura no reconocida")
	ErrSchemaValidation     = errors.New("documento no cumple el modelo de datos")
	ErrSignatureNotFound    = errors.New("firma electrónica no encontrada")
	ErrCertificateParse     = errors.New("certificado X.509 ilegible")
	ErrUnsupportedAlgorithm = errors.New("algoritmo no soportado")
)

// EncodingError: los bytes no se pudieron decodificar con ninguna codificación intentada.
type EncodingError struct {
	Attempted []string
	Err       error
}

func (e *EncodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (intentadas: %v): %v", ErrEncoding, e.Attempted, e.Err)
	}
	return fmt.Sprintf("%s (intentadas: %v)", ErrEncoding, e.Attempted)
}

func (e *EncodingError) Unwrap() error        { return e.Err }
func (e *EncodingError) Is(target error) bool { return target == ErrEncoding }

// MalformedXMLKind distingue errores de sintaxis de construcciones prohibidas (DTD, entidades).
type MalformedXMLKind string

const (
	MalformedSyntax           MalformedXMLKind = "syntax"
	MalformedForbiddenFeature MalformedXMLKind = "forbidden-feature"
)

type MalformedXMLError struct {
	Kind MalformedXMLKind
	Err  error
}

func (e *MalformedXMLError) Error() string {
	return fmt.Sprintf("%s (%s): %v", ErrMalformedXML, e.Kind, e.Err)
}

func (e *MalformedXMLError) Unwrap() error        { return e.Err }
func (e *MalformedXMLError) Is(target error) bool { return target == ErrMalformedXML }

// UncleanableDocumentError: el árbol no calza con ninguna forma esperada de documento.
type UncleanableDocumentError struct {
	Reason string
}

func (e *UncleanableDocumentError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUncleanableDocument, e.Reason)
}

func (e *UncleanableDocumentError) Is(target error) bool { return target == ErrUncleanableDocument }

// ViolationCode es el conjunto cerrado de violaciones del modelo de datos.
type ViolationCode string

const (
	ViolationMissing           ViolationCode = "missing"
	ViolationWrongType         ViolationCode = "wrong-type"
	ViolationOutOfRange        ViolationCode = "out-of-range"
	ViolationMutuallyExclusive ViolationCode = "mutually-exclusive-conflict"
)

// SchemaValidationError identifica el primer campo que viola el modelo, con su ruta XML.
type SchemaValidationError struct {
	Field string
	Code  ViolationCode
	Value string
	Err   error
}

func (e *SchemaValidationError) Error() string {
	msg := fmt.Sprintf("%s: %s [%s]", ErrSchemaValidation, e.Field, e.Code)
	if e.Value != "" {
		msg += fmt.Sprintf(" valor=%q", e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaValidationError) Unwrap() error        { return e.Err }
func (e *SchemaValidationError) Is(target error) bool { return target == ErrSchemaValidation }

// SignatureNotFoundError: el documento no trae bloque ds:Signature donde se espera.
type SignatureNotFoundError struct {
	Path string
}

func (e *SignatureNotFoundError) Error() string {
	return fmt.Sprintf("%s en %s", ErrSignatureNotFound, e.Path)
}

func (e *SignatureNotFoundError) Is(target error) bool { return target == ErrSignatureNotFound }

type CertificateParseError struct {
	Err error
}

func (e *CertificateParseError) Error() string {
	return fmt.Sprintf("%s: %v", ErrCertificateParse, e.Err)
}

func (e *CertificateParseError) Unwrap() error        { return e.Err }
func (e *CertificateParseError) Is(target error) bool { return target == ErrCertificateParse }

// IsStructural indica si el error aborta el pipeline (encoding, XML, forma o modelo).
func IsStructural(err error) bool {
	return errors.Is(err, ErrDocumentTooLarge) ||
		errors.Is(err, ErrEncoding) ||
		errors.Is(err, ErrMalformedXML) ||
		errors.Is(err, ErrUncleanableDocument) ||
		errors.Is(err, ErrSchemaValidation)
}
