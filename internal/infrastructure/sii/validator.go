package sii

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/secretline/lib-cl-sii-go/internal/domain"
	"github.com/secretline/lib-cl-sii-go/internal/domain/dte"
	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/xmlutil"
)

// Validate despacha por raíz, contenedor y versión a la tabla de campos de la variante
// y construye el registro. Devuelve la primera violación como *domain.SchemaValidationError;
// nunca un registro parcial.
func Validate(doc *etree.Document) (dte.Record, error) {
	root := doc.Root()
	if root == nil {
		return nil, &domain.SchemaValidationError{Field: "/", Code: domain.ViolationMissing}
	}
	if !xmlutil.InNamespace(root, siiNamespaces...) {
		return nil, &domain.SchemaValidationError{
			Field: root.Tag,
			Code:  domain.ViolationWrongType,
			Value: root.NamespaceURI(),
			Err:   fmt.Errorf("namespace de la raíz no reconocido"),
		}
	}

	switch root.Tag {
	case "DTE":
		rec, err := parseDTE(root)
		if err != nil {
			return nil, err
		}
		return rec, nil
	case "AEC":
		rec, err := parseAEC(root)
		if err != nil {
			return nil, err
		}
		return rec, nil
	}
	return nil, &domain.SchemaValidationError{
		Field: root.Tag,
		Code:  domain.ViolationWrongType,
		Err:   fmt.Errorf("raíz %q no corresponde a DTE ni AEC", root.Tag),
	}
}
