// Normalizador de codificación: deja el XML crudo en UTF-8 antes de parsearlo.
// Los DTE circulan declarados como ISO-8859-1 pero muchas veces guardados en UTF-8,
// con BOM, con declaraciones duplicadas o con relleno NUL al final.

package sii

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"

	"github.com/secretline/lib-cl-sii-go/internal/domain"
)

// FallbackEncodings se intentan después de la codificación declarada y de UTF-8.
var FallbackEncodings = []string{"windows-1252", "ISO-8859-1"}

// Reparaciones que puede aplicar el normalizador (se informan en NormalizedText.Repairs).
const (
	RepairBOM              = "bom-removed"
	RepairMojibakeBOM      = "mojibake-bom-removed"
	RepairTrailingNUL      = "trailing-nul-removed"
	RepairLeadingSpace     = "leading-whitespace-removed"
	RepairDuplicateProlog  = "duplicate-xml-declaration-removed"
	RepairEncodingConflict = "declared-encoding-conflict"
	RepairPrologRewritten  = "xml-declaration-rewritten"
)

var (
	bomUTF8        = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE     = []byte{0xFF, 0xFE}
	bomUTF16BE     = []byte{0xFE, 0xFF}
	bomUTF8Mangled = []byte("ï»¿")

	xmlDeclRegex      = regexp.MustCompile(`^<\?xml\s[^>]*?\?>`)
	xmlDeclAnyRegex   = regexp.MustCompile(`<\?xml\s+version[^>]*?\?>`)
	encodingAttrRegex = regexp.MustCompile(`encoding\s*=\s*["']([A-Za-z0-9._:\-]+)["']`)
)

// NormalizedText es el resultado del normalizador: texto UTF-8 y cómo se obtuvo.
type NormalizedText struct {
	Text             []byte   `json:"-"`
	DetectedEncoding string   `json:"detected_encoding"`
	DeclaredEncoding string   `json:"declared_encoding,omitempty"`
	Repairs          []string `json:"repairs,omitempty"`
}

// Normalize decodifica raw a UTF-8. Orden de intentos: BOM, hint del llamador, UTF-8
// si el contenido es multibyte válido (prevalece sobre un prólogo contradictorio),
// declaración del prólogo, UTF-8 y FallbackEncodings. Un intento se descarta si produce caracteres que XML 1.0
// no admite. No modifica raw.
func Normalize(raw []byte, declaredEncoding string) (NormalizedText, error) {
	var out NormalizedText
	b := raw

	forced := ""
	switch {
	case bytes.HasPrefix(b, bomUTF8):
		b = b[len(bomUTF8):]
		forced = "UTF-8"
		out.Repairs = append(out.Repairs, RepairBOM)
	case bytes.HasPrefix(b, bomUTF16LE), bytes.HasPrefix(b, bomUTF16BE):
		forced = "UTF-16BE"
		if bytes.HasPrefix(b, bomUTF16LE) {
			forced = "UTF-16LE"
		}
		endianness := unicode.BigEndian
		if forced == "UTF-16LE" {
			endianness = unicode.LittleEndian
		}
		decoded, err := unicode.UTF16(endianness, unicode.ExpectBOM).NewDecoder().Bytes(b)
		if err != nil {
			return NormalizedText{}, &domain.EncodingError{Attempted: []string{forced}, Err: err}
		}
		b = decoded
		out.Repairs = append(out.Repairs, RepairBOM)
	case bytes.HasPrefix(b, bomUTF8Mangled):
		b = b[len(bomUTF8Mangled):]
		out.Repairs = append(out.Repairs, RepairMojibakeBOM)
	}

	if trimmed := bytes.TrimRight(b, "\x00"); len(trimmed) != len(b) {
		b = trimmed
		out.Repairs = append(out.Repairs, RepairTrailingNUL)
	}
	if trimmed := bytes.TrimLeft(b, " \t\r\n"); len(trimmed) != len(b) && bytes.HasPrefix(trimmed, []byte("<?xml")) {
		b = trimmed
		out.Repairs = append(out.Repairs, RepairLeadingSpace)
	}

	prolog := xmlDeclRegex.Find(b)
	if prolog != nil {
		if m := encodingAttrRegex.FindSubmatch(prolog); m != nil {
			out.DeclaredEncoding = string(m[1])
		}
		rest := b[len(prolog):]
		if xmlDeclAnyRegex.Match(rest) {
			cleaned := xmlDeclAnyRegex.ReplaceAll(rest, nil)
			b = append(append([]byte{}, prolog...), cleaned...)
			out.Repairs = append(out.Repairs, RepairDuplicateProlog)
		}
	}

	var candidates []string
	contentUTF8 := false
	switch {
	case strings.HasPrefix(forced, "UTF-16"):
		candidates = append(candidates, forced)
	default:
		if forced != "" {
			candidates = append(candidates, forced)
		}
		candidates = append(candidates, declaredEncoding)
		// El contenido sólo se impone al prólogo, nunca al hint.
		if utf8.Valid(b) && hasNonASCII(b) {
			candidates = append(candidates, "UTF-8")
			contentUTF8 = true
		}
		candidates = append(candidates, out.DeclaredEncoding, "UTF-8")
		candidates = append(candidates, FallbackEncodings...)
	}

	var attempted []string
	var lastErr error
	seen := map[string]bool{}
	for _, name := range candidates {
		key := strings.ToUpper(strings.TrimSpace(name))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		attempted = append(attempted, key)

		text, err := decodeAs(b, key)
		if err == nil {
			err = checkXMLChars(text)
		}
		if err != nil {
			lastErr = err
			continue
		}
		out.DetectedEncoding = key
		if contentUTF8 && isUTF8Label(key) && out.DeclaredEncoding != "" && !isUTF8Label(out.DeclaredEncoding) {
			out.Repairs = append(out.Repairs, RepairEncodingConflict)
		}
		out.Text = rewriteProlog(text, &out)
		return out, nil
	}
	return NormalizedText{}, &domain.EncodingError{Attempted: attempted, Err: lastErr}
}

func decodeAs(b []byte, name string) ([]byte, error) {
	// Ya decodificado desde UTF-16 más arriba.
	if name == "UTF-16LE" || name == "UTF-16BE" || isUTF8Label(name) {
		if !utf8.Valid(b) {
			return nil, fmt.Errorf("bytes no son UTF-8 válido")
		}
		return append([]byte(nil), b...), nil
	}
	enc, err := lookupEncoding(name)
	if err != nil {
		return nil, err
	}
	decoded, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return nil, fmt.Errorf("decodificar %s: %w", name, err)
	}
	if bytes.ContainsRune(decoded, utf8.RuneError) {
		return nil, fmt.Errorf("bytes sin representación en %s", name)
	}
	return decoded, nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("codificación desconocida %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("codificación %q no soportada", name)
	}
	return enc, nil
}

func isUTF8Label(name string) bool {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "UTF-8", "UTF8":
		return true
	}
	return false
}

func hasNonASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return true
		}
	}
	return false
}

// checkXMLChars aplica la producción Char de XML 1.0.
func checkXMLChars(text []byte) error {
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRune(text[i:])
		if !isXMLChar(r) {
			return fmt.Errorf("carácter no permitido en XML U+%04X en el byte %d", r, i)
		}
		i += size
	}
	return nil
}

func isXMLChar(r rune) bool {
	switch {
	case r == 0x09 || r == 0x0A || r == 0x0D:
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= 0x10FFFF:
		return true
	}
	return false
}

// rewriteProlog deja la declaración XML coherente con el texto UTF-8 resultante.
func rewriteProlog(text []byte, out *NormalizedText) []byte {
	prolog := xmlDeclRegex.Find(text)
	if prolog == nil {
		return text
	}
	m := encodingAttrRegex.FindSubmatchIndex(prolog)
	if m == nil || string(prolog[m[2]:m[3]]) == "UTF-8" {
		return text
	}
	rewritten := make([]byte, 0, len(text))
	rewritten = append(rewritten, prolog[:m[2]]...)
	rewritten = append(rewritten, "UTF-8"...)
	rewritten = append(rewritten, prolog[m[3]:]...)
	rewritten = append(rewritten, text[len(prolog):]...)
	out.Repairs = append(out.Repairs, RepairPrologRewritten)
	return rewritten
}
