package sii_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secretline/lib-cl-sii-go/internal/domain"
	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/sii"
)

const latin1Prolog = `<?xml version="1.0" encoding="ISO-8859-1"?>`

// "Razón" en ISO-8859-1: ó = 0xF3.
func latin1Doc() []byte {
	return append([]byte(latin1Prolog+"<RznSoc>Raz"), append([]byte{0xF3}, []byte("n</RznSoc>")...)...)
}

func TestNormalize_ISO88591Declarado(t *testing.T) {
	out, err := sii.Normalize(latin1Doc(), "")
	require.NoError(t, err)

	assert.Equal(t, `<?xml version="1.0" encoding="UTF-8"?><RznSoc>Razón</RznSoc>`, string(out.Text))
	assert.Equal(t, "ISO-8859-1", out.DetectedEncoding)
	assert.Equal(t, "ISO-8859-1", out.DeclaredEncoding)
	assert.Contains(t, out.Repairs, sii.RepairPrologRewritten)
}

// Declara ISO-8859-1 pero los bytes son UTF-8: se respeta el contenido real.
func TestNormalize_DeclaracionContradiceContenido(t *testing.T) {
	raw := []byte(latin1Prolog + "<RznSoc>Razón</RznSoc>")
	out, err := sii.Normalize(raw, "")
	require.NoError(t, err)

	assert.Equal(t, `<?xml version="1.0" encoding="UTF-8"?><RznSoc>Razón</RznSoc>`, string(out.Text))
	assert.Equal(t, "UTF-8", out.DetectedEncoding)
	assert.Contains(t, out.Repairs, sii.RepairEncodingConflict)
}

// Declara UTF-8 pero los bytes son Latin-1: cae a la lista de respaldo.
func TestNormalize_UTF8DeclaradoConBytesLatin1(t *testing.T) {
	raw := bytes.Replace(latin1Doc(), []byte("ISO-8859-1"), []byte("UTF-8"), 1)
	out, err := sii.Normalize(raw, "")
	require.NoError(t, err)
	assert.Equal(t, "WINDOWS-1252", out.DetectedEncoding)
	assert.Contains(t, string(out.Text), "Razón")
}

func TestNormalize_BOMUTF8(t *testing.T) {
	raw := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`<?xml version="1.0"?><a/>`)...)
	out, err := sii.Normalize(raw, "")
	require.NoError(t, err)
	assert.Equal(t, `<?xml version="1.0"?><a/>`, string(out.Text))
	assert.Equal(t, []string{sii.RepairBOM}, out.Repairs)
}

func TestNormalize_BOMUTF16LE(t *testing.T) {
	src := `<?xml version="1.0" encoding="UTF-16"?><a>ñ</a>`
	raw := []byte{0xFF, 0xFE}
	for _, r := range src {
		raw = append(raw, byte(r), byte(r>>8))
	}
	out, err := sii.Normalize(raw, "")
	require.NoError(t, err)
	assert.Equal(t, "UTF-16LE", out.DetectedEncoding)
	assert.Equal(t, `<?xml version="1.0" encoding="UTF-8"?><a>ñ</a>`, string(out.Text))
}

func TestNormalize_ReparacionesDeBytes(t *testing.T) {
	raw := []byte("\r\n  " + latin1Prolog + `<?xml version="1.0" encoding="ISO-8859-1"?><a>x</a>` + "\x00\x00")
	out, err := sii.Normalize(raw, "")
	require.NoError(t, err)
	assert.Equal(t, `<?xml version="1.0" encoding="UTF-8"?><a>x</a>`, string(out.Text))
	assert.Contains(t, out.Repairs, sii.RepairLeadingSpace)
	assert.Contains(t, out.Repairs, sii.RepairDuplicateProlog)
	assert.Contains(t, out.Repairs, sii.RepairTrailingNUL)
}

func TestNormalize_CaracterDeControlEsEncodingError(t *testing.T) {
	raw := []byte("<a>\x01</a>")
	_, err := sii.Normalize(raw, "")
	require.Error(t, err)

	var encErr *domain.EncodingError
	require.True(t, errors.As(err, &encErr))
	assert.ErrorIs(t, err, domain.ErrEncoding)
	assert.Equal(t, []string{"UTF-8", "WINDOWS-1252", "ISO-8859-1"}, encErr.Attempted)
}

// ── Precedencia del hint ────────────────────────────────────────────────────

// El hint del llamador se intenta antes que la detección por contenido.
func TestNormalize_HintPrevaleceSobreContenido(t *testing.T) {
	raw := []byte("<RznSoc>Razón</RznSoc>")
	out, err := sii.Normalize(raw, "ISO-8859-1")
	require.NoError(t, err)

	assert.Equal(t, "ISO-8859-1", out.DetectedEncoding)
	assert.Equal(t, "<RznSoc>RazÃ³n</RznSoc>", string(out.Text))
	assert.NotContains(t, out.Repairs, sii.RepairEncodingConflict)
}

// Un hint que no decodifica los bytes cede a la detección por contenido, que a su
// vez prevalece sobre el prólogo contradictorio.
func TestNormalize_HintInvalidoCedeAlContenido(t *testing.T) {
	raw := []byte(latin1Prolog + "<RznSoc>Razón</RznSoc>")
	out, err := sii.Normalize(raw, "US-ASCII")
	require.NoError(t, err)

	assert.Equal(t, "UTF-8", out.DetectedEncoding)
	assert.Contains(t, out.Repairs, sii.RepairEncodingConflict)
}

func TestNormalize_HintDesconocidoSeIgnora(t *testing.T) {
	out, err := sii.Normalize([]byte("<a>x</a>"), "x-no-existe")
	require.NoError(t, err)
	assert.Equal(t, "UTF-8", out.DetectedEncoding)
}

func TestNormalize_NoModificaEntradaYEsIdempotente(t *testing.T) {
	raw := latin1Doc()
	original := append([]byte(nil), raw...)

	first, err := sii.Normalize(raw, "")
	require.NoError(t, err)
	assert.Equal(t, original, raw)

	second, err := sii.Normalize(first.Text, "")
	require.NoError(t, err)
	assert.Equal(t, first.Text, second.Text)
	assert.Empty(t, second.Repairs)
}
