// Package docs registra la especificación Swagger 2.0 de la API de verificación
// de DTE. swagger.json se mantiene a mano junto a las anotaciones godoc de
// internal/interfaces/http y también se sirve en /docs.
package docs

import (
	_ "embed"

	"github.com/swaggo/swag"
)

//go:embed swagger.json
var docTemplate string

// SwaggerInfo metadatos de la API.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "DTE Verifier API",
	Description:      "Verificación de DTE y AEC del SII: codificación, limpieza, modelo de datos y firma XML-DSig.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
