// Package xmlutil agrupa el parseo seguro de XML, la canonicalización C14N y la navegación
// por el árbol que usan el limpiador, el validador y el verificador de firmas.
package xmlutil

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/beevik/etree"

	"github.com/secretline/lib-cl-sii-go/internal/domain"
)

var (
	// ErrNotUTF8 se produce cuando el prólogo declara una codificación distinta de UTF-8:
	// el texto debe pasar antes por el normalizador.
	ErrNotUTF8 = errors.New("el texto debe venir normalizado a UTF-8")
	// ErrNoRoot: el documento no tiene elemento raíz.
	ErrNoRoot = errors.New("documento sin elemento raíz")
	// ErrDuplicateAttr: un elemento repite un atributo.
	ErrDuplicateAttr = errors.New("atributo duplicado")
)

// Solo se admite una declaración DOCTYPE desnuda (sin subconjunto interno ni identificadores).
var bareDoctypeRegex = regexp.MustCompile(`^DOCTYPE\s+[A-Za-z_][\w:.\-]*\s*$`)

// Parse construye el árbol de un documento UTF-8. Nunca expande entidades ni resuelve
// recursos externos: un DOCTYPE con subconjunto interno, declaraciones ENTITY o
// identificadores SYSTEM/PUBLIC se rechaza como construcción prohibida, y una referencia
// a entidad no predefinida es error de sintaxis.
func Parse(text []byte) (*etree.Document, error) {
	if err := scanDirectives(text); err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	doc.ReadSettings = etree.ReadSettings{
		CharsetReader:          utf8CharsetReader,
		ValidateInput:          true,
		PreserveDuplicateAttrs: true,
	}
	if err := doc.ReadFromBytes(text); err != nil {
		return nil, &domain.MalformedXMLError{Kind: domain.MalformedSyntax, Err: err}
	}
	root := doc.Root()
	if root == nil {
		return nil, &domain.MalformedXMLError{Kind: domain.MalformedSyntax, Err: ErrNoRoot}
	}
	if err := checkDuplicateAttrs(root); err != nil {
		return nil, &domain.MalformedXMLError{Kind: domain.MalformedSyntax, Err: err}
	}
	return doc, nil
}

// scanDirectives recorre los tokens crudos buscando directivas <!...>. Los errores de
// sintaxis se dejan al parser del árbol, que los informa con su posición.
func scanDirectives(text []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(text))
	dec.CharsetReader = utf8CharsetReader
	for {
		tok, err := dec.RawToken()
		if err != nil {
			return nil
		}
		d, ok := tok.(xml.Directive)
		if !ok {
			continue
		}
		if !bareDoctypeRegex.Match(bytes.TrimSpace(d)) {
			return &domain.MalformedXMLError{
				Kind: domain.MalformedForbiddenFeature,
				Err:  fmt.Errorf("directiva no permitida: <!%s>", truncate(string(d), 60)),
			}
		}
	}
}

func utf8CharsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "utf-8", "utf8":
		return input, nil
	}
	return nil, fmt.Errorf("%w (declarada: %s)", ErrNotUTF8, label)
}

func checkDuplicateAttrs(el *etree.Element) error {
	if len(el.Attr) > 1 {
		seen := make(map[string]struct{}, len(el.Attr))
		for _, a := range el.Attr {
			k := a.FullKey()
			if _, dup := seen[k]; dup {
				return fmt.Errorf("%w %q en %s", ErrDuplicateAttr, k, Path(el))
			}
			seen[k] = struct{}{}
		}
	}
	for _, child := range el.ChildElements() {
		if err := checkDuplicateAttrs(child); err != nil {
			return err
		}
	}
	return nil
}

// CopyDocument devuelve una copia profunda del documento cuyos nodos de primer nivel
// quedan enlazados a la copia (etree.Document.Copy los deja colgando de un elemento interno).
func CopyDocument(doc *etree.Document) *etree.Document {
	cp := doc.Copy()
	out := etree.NewDocument()
	out.ReadSettings = doc.ReadSettings
	out.WriteSettings = doc.WriteSettings
	children := append([]etree.Token(nil), cp.Child...)
	for _, t := range children {
		out.AddChild(t)
	}
	return out
}

// Serialize escribe el documento tal cual, sin indentar.
func Serialize(doc *etree.Document) ([]byte, error) {
	return doc.WriteToBytes()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
