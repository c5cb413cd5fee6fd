package docs_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swaggo/swag"

	_ "github.com/secretline/lib-cl-sii-go/docs"
)

func TestSwagger_RegistradoYValido(t *testing.T) {
	doc, err := swag.ReadDoc()
	require.NoError(t, err)

	var parsed struct {
		Swagger string                     `json:"swagger"`
		Paths   map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal([]byte(doc), &parsed))
	assert.Equal(t, "2.0", parsed.Swagger)
	assert.Contains(t, parsed.Paths, "/api/v1/dte/verify")
	assert.Contains(t, parsed.Paths, "/api/v1/dte/verifications/{slug}")
}
