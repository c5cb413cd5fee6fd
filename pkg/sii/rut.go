package sii

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Formato canónico del RUT (tipo 'RUTType' del esquema SiiTypes_v10.xsd).
const (
	RutCanonicalMaxLength = 10
	RutCanonicalMinLength = 3
	RutVerboseMaxLength   = RutCanonicalMaxLength + 3
	RutVerboseMinLength   = RutCanonicalMinLength
	RutDigitsMaxValue     = 99999999
)

var rutCanonicalStrictRegex = regexp.MustCompile(`^(\d{1,8})-([\dK])$`)

// pesos del módulo 11 del SII, aplicados a los dígitos de derecha a izquierda.
var rutWeights = [6]int{2, 3, 4, 5, 6, 7}

// Rut es un RUT chileno en formato canónico ("76354771-K"). Es un valor inmutable;
// la variable cero no es un RUT válido.
type Rut struct {
	digits string
	dv     byte
}

// ParseRut acepta el formato canónico y el "verboso" (puntos, espacios, k minúscula)
// y devuelve el RUT en forma canónica. No valida el dígito verificador; ver ValidateDV.
func ParseRut(value string) (Rut, error) {
	if len(value) > RutVerboseMaxLength+2 {
		return Rut{}, fmt.Errorf("sii: RUT demasiado largo (%d caracteres)", len(value))
	}
	clean := strings.ToUpper(strings.TrimSpace(value))
	clean = strings.ReplaceAll(clean, ".", "")
	clean = strings.ReplaceAll(clean, " ", "")

	m := rutCanonicalStrictRegex.FindStringSubmatch(clean)
	if m == nil {
		return Rut{}, fmt.Errorf("sii: RUT con sintaxis inválida: %q", value)
	}
	digits := strings.TrimLeft(m[1], "0")
	if digits == "" {
		return Rut{}, fmt.Errorf("sii: RUT sin dígitos significativos: %q", value)
	}
	return Rut{digits: digits, dv: m[2][0]}, nil
}

// MustParseRut es ParseRut para constantes y tests; hace panic si el valor es inválido.
func MustParseRut(value string) Rut {
	r, err := ParseRut(value)
	if err != nil {
		panic(err)
	}
	return r
}

// String devuelve el formato canónico.
func (r Rut) String() string {
	if r.IsZero() {
		return ""
	}
	return r.digits + "-" + string(r.dv)
}

// Verbose devuelve el RUT con separador de miles ("76.354.771-K").
func (r Rut) Verbose() string {
	if r.IsZero() {
		return ""
	}
	var b strings.Builder
	n := len(r.digits)
	for i, c := range r.digits {
		if i > 0 && (n-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}
	b.WriteByte('-')
	b.WriteByte(r.dv)
	return b.String()
}

func (r Rut) Digits() string { return r.digits }
func (r Rut) DV() byte       { return r.dv }
func (r Rut) IsZero() bool   { return r.digits == "" }

// DigitsInt devuelve la parte numérica del RUT.
func (r Rut) DigitsInt() int {
	n, _ := strconv.Atoi(r.digits)
	return n
}

// ValidateDV verifica el dígito verificador con el algoritmo módulo 11 del SII.
func (r Rut) ValidateDV() error {
	if r.IsZero() {
		return fmt.Errorf("sii: RUT vacío")
	}
	expected := ComputeRutDV(r.digits)
	if expected != r.dv {
		return fmt.Errorf("sii: dígito verificador del RUT inválido: esperado %c, recibido %c", expected, r.dv)
	}
	return nil
}

// ComputeRutDV calcula el dígito verificador ('0'-'9' o 'K') para la parte numérica.
// Los caracteres que no son dígitos se ignoran.
func ComputeRutDV(digits string) byte {
	var sum int
	w := 0
	for i := len(digits) - 1; i >= 0; i-- {
		c := digits[i]
		if c < '0' || c > '9' {
			continue
		}
		sum += int(c-'0') * rutWeights[w%len(rutWeights)]
		w++
	}
	switch r := 11 - sum%11; r {
	case 11:
		return '0'
	case 10:
		return 'K'
	default:
		return byte('0' + r)
	}
}

// MarshalText serializa en formato canónico (JSON, logs, columnas de texto).
func (r Rut) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText acepta cualquier formato aceptado por ParseRut.
func (r *Rut) UnmarshalText(b []byte) error {
	parsed, err := ParseRut(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
