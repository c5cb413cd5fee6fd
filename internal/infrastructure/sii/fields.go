package sii

import (
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/secretline/lib-cl-sii-go/internal/domain"
	"github.com/secretline/lib-cl-sii-go/internal/domain/dte"
	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/xmlutil"
	"github.com/secretline/lib-cl-sii-go/pkg/sii"
)

var (
	siiNamespaces  = []string{sii.NamespaceDTE, ""}
	dsigNamespaces = []string{sii.NamespaceDSig}

	// Formatos del SII: enteros base 10 sin signo ni separadores, decimales con punto.
	siiIntRegex     = regexp.MustCompile(`^\d+$`)
	siiDecimalRegex = regexp.MustCompile(`^\d+(\.\d+)?$`)
	siiRutRegex     = regexp.MustCompile(`^\d{1,8}-[\dK]$`)
)

// violation es un error de valor con su código; la tabla de campos le agrega la ruta.
type violation struct {
	code domain.ViolationCode
	err  error
}

func (v *violation) Error() string { return v.err.Error() }
func (v *violation) Unwrap() error { return v.err }

func wrongType(format string, args ...any) error {
	return &violation{code: domain.ViolationWrongType, err: fmt.Errorf(format, args...)}
}

func outOfRange(err error) error {
	return &violation{code: domain.ViolationOutOfRange, err: err}
}

func missingValue(err error) error {
	return &violation{code: domain.ViolationMissing, err: err}
}

// field es una entrada de tabla: ruta relativa al elemento base, obligatoriedad y el
// setter que coerciona el texto y aplica las restricciones de dominio. El último tramo
// de la ruta admite alternativas separadas por "|" (p. ej. "RznSoc|RznSocEmisor").
type field struct {
	path       string
	required   bool
	namespaces []string
	set        func(value string) error
}

// fieldScope resuelve rutas relativas a base y arma las rutas completas de los errores.
type fieldScope struct {
	base     *etree.Element
	basePath string
}

func newScope(base *etree.Element) fieldScope {
	return fieldScope{base: base, basePath: xmlutil.Path(base)}
}

func (s fieldScope) child(rel string) fieldScope {
	return fieldScope{base: xmlutil.FindPath(s.base, rel, siiNamespaces...), basePath: s.join(rel)}
}

func (s fieldScope) join(rel string) string {
	if s.basePath == "" {
		return rel
	}
	return s.basePath + "/" + rel
}

// lookup devuelve el elemento y la ruta reportable; si no existe, la ruta es la de la
// primera alternativa.
func (s fieldScope) lookup(f field) (*etree.Element, string) {
	ns := f.namespaces
	if ns == nil {
		ns = siiNamespaces
	}
	dir, last := "", f.path
	if i := strings.LastIndex(f.path, "/"); i >= 0 {
		dir, last = f.path[:i], f.path[i+1:]
	}
	alts := strings.Split(last, "|")
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}

	parent := s.base
	if dir != "" {
		parent = xmlutil.FindPath(s.base, dir, ns...)
	}
	if parent != nil {
		for _, alt := range alts {
			if el := xmlutil.FindChild(parent, alt, ns...); el != nil {
				return el, s.join(prefix + alt)
			}
		}
	}
	return nil, s.join(prefix + alts[0])
}

// run procesa la tabla en orden y devuelve la primera violación.
func (s fieldScope) run(fields []field) error {
	if s.base == nil {
		return &domain.SchemaValidationError{Field: s.basePath, Code: domain.ViolationMissing}
	}
	for _, f := range fields {
		el, path := s.lookup(f)
		if el == nil {
			if f.required {
				return &domain.SchemaValidationError{Field: path, Code: domain.ViolationMissing}
			}
			continue
		}
		raw := xmlutil.Text(el)
		if err := f.set(raw); err != nil {
			return schemaError(path, raw, err)
		}
	}
	return nil
}

// schemaError convierte un error de setter (o de constructor de dominio) en
// SchemaValidationError con su código.
func schemaError(path, raw string, err error) error {
	code := domain.ViolationOutOfRange
	var v *violation
	switch {
	case errors.As(err, &v):
		code = v.code
	case errors.Is(err, dte.ErrInvalidType):
		code = domain.ViolationWrongType
	case errors.Is(err, dte.ErrEmptyValue):
		code = domain.ViolationMissing
	}
	if len(raw) > 64 {
		raw = raw[:64] + "..."
	}
	return &domain.SchemaValidationError{Field: path, Code: code, Value: raw, Err: err}
}

// ── Coerciones ──────────────────────────────────────────────────────────────

func parseSIIInt(value string) (int64, error) {
	if !siiIntRegex.MatchString(value) {
		return 0, wrongType("entero inválido %q", value)
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, outOfRange(fmt.Errorf("%w: %s", dte.ErrOutOfRange, value))
	}
	return n, nil
}

func parseMonto(value string) (int64, error) {
	n, err := parseSIIInt(value)
	if err != nil {
		return 0, err
	}
	if err := dte.ValidateMontoTotal(n); err != nil {
		return 0, outOfRange(err)
	}
	return n, nil
}

func parseSIIDate(value string) (sii.Date, error) {
	d, err := sii.ParseDate(value)
	if err != nil {
		return sii.Date{}, wrongType("fecha inválida %q", value)
	}
	return d, nil
}

func parseSIITimestamp(value string) (sii.NaiveDateTime, error) {
	ts, err := sii.ParseNaiveDateTime(value)
	if err != nil {
		return sii.NaiveDateTime{}, wrongType("timestamp inválido %q", value)
	}
	return ts, nil
}

func parseSIIDecimal(value string) (decimal.Decimal, error) {
	if !siiDecimalRegex.MatchString(value) {
		return decimal.Decimal{}, wrongType("decimal inválido %q", value)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, wrongType("decimal inválido %q", value)
	}
	return d, nil
}

// parseSIIRut exige la forma canónica y un dígito verificador correcto.
func parseSIIRut(value string) (sii.Rut, error) {
	clean := strings.ToUpper(value)
	if !siiRutRegex.MatchString(clean) {
		return sii.Rut{}, wrongType("RUT inválido %q", value)
	}
	r, err := sii.ParseRut(clean)
	if err != nil {
		return sii.Rut{}, wrongType("%v", err)
	}
	if err := r.ValidateDV(); err != nil {
		return sii.Rut{}, wrongType("%v", err)
	}
	return r, nil
}

func parseTipoDTE(value string) (sii.TipoDTE, error) {
	n, err := parseSIIInt(value)
	if err != nil {
		return 0, err
	}
	tipo, err := sii.ParseTipoDTE(int(n))
	if err != nil {
		return 0, outOfRange(err)
	}
	return tipo, nil
}

// parseBase64 tolera saltos de línea y espacios, habituales en firmas y certificados.
func parseBase64(value string) ([]byte, error) {
	compact := strings.Join(strings.Fields(value), "")
	if compact == "" {
		return nil, missingValue(fmt.Errorf("%w: base64", dte.ErrEmptyValue))
	}
	b, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil, wrongType("base64 inválido: %v", err)
	}
	return b, nil
}

func certToPEM(der []byte) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

// ── Setters reutilizables ───────────────────────────────────────────────────

func setRazonSocial(dst *string) func(string) error {
	return func(v string) error {
		if v == "" {
			return missingValue(fmt.Errorf("%w: razón social", dte.ErrEmptyValue))
		}
		if err := dte.ValidateRazonSocial(v); err != nil {
			return outOfRange(err)
		}
		*dst = v
		return nil
	}
}

func setRequiredText(dst *string) func(string) error {
	return func(v string) error {
		if v == "" {
			return missingValue(dte.ErrEmptyValue)
		}
		*dst = v
		return nil
	}
}

func setOptionalText(dst *string, maxLen int) func(string) error {
	return func(v string) error {
		if maxLen > 0 && len([]rune(v)) > maxLen {
			return outOfRange(fmt.Errorf("%w: %d > %d", dte.ErrTooLong, len([]rune(v)), maxLen))
		}
		*dst = v
		return nil
	}
}

func setRut(dst *sii.Rut) func(string) error {
	return func(v string) (err error) {
		*dst, err = parseSIIRut(v)
		return err
	}
}

func setDate(dst *sii.Date) func(string) error {
	return func(v string) (err error) {
		*dst, err = parseSIIDate(v)
		return err
	}
}

func setTimestamp(dst *sii.NaiveDateTime) func(string) error {
	return func(v string) (err error) {
		*dst, err = parseSIITimestamp(v)
		return err
	}
}

func setMonto(dst *int64) func(string) error {
	return func(v string) (err error) {
		*dst, err = parseMonto(v)
		return err
	}
}

func setOptionalMonto(dst *dte.OptionalInt) func(string) error {
	return func(v string) error {
		n, err := parseMonto(v)
		if err != nil {
			return err
		}
		*dst = dte.SomeInt(n)
		return nil
	}
}

func setFolio(dst *int64) func(string) error {
	return func(v string) error {
		n, err := parseSIIInt(v)
		if err != nil {
			return err
		}
		if err := dte.ValidateFolio(n); err != nil {
			return outOfRange(err)
		}
		*dst = n
		return nil
	}
}

// setCompact copia el texto sin espacios ni saltos de línea, sin validarlo.
func setCompact(dst *string) func(string) error {
	return func(v string) error {
		*dst = strings.Join(strings.Fields(v), "")
		return nil
	}
}

// setCertificatePEM deja el certificado en PEM. Si el base64 es ilegible el campo
// queda vacío; el verificador lo reporta como CertificateParseError.
func setCertificatePEM(dst *string) func(string) error {
	return func(v string) error {
		der, err := parseBase64(v)
		if err != nil {
			return nil
		}
		*dst = certToPEM(der)
		return nil
	}
}
