package xmlutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

var (
	ErrIDNotFound  = errors.New("no existe elemento con ese ID")
	ErrDuplicateID = errors.New("ID repetido en el documento")
)

// IDAttr es el atributo que usan las referencias "#ID" de las firmas del SII.
const IDAttr = "ID"

// InNamespace indica si el elemento pertenece a alguno de los namespaces dados.
// Sin namespaces, cualquier elemento califica.
func InNamespace(el *etree.Element, namespaces ...string) bool {
	if len(namespaces) == 0 {
		return true
	}
	uri := el.NamespaceURI()
	for _, ns := range namespaces {
		if uri == ns {
			return true
		}
	}
	return false
}

// FindChild devuelve el primer hijo directo con ese nombre local.
func FindChild(el *etree.Element, local string, namespaces ...string) *etree.Element {
	if el == nil {
		return nil
	}
	for _, c := range el.ChildElements() {
		if c.Tag == local && InNamespace(c, namespaces...) {
			return c
		}
	}
	return nil
}

// FindChildren devuelve todos los hijos directos con ese nombre local, en orden de documento.
func FindChildren(el *etree.Element, local string, namespaces ...string) []*etree.Element {
	if el == nil {
		return nil
	}
	var out []*etree.Element
	for _, c := range el.ChildElements() {
		if c.Tag == local && InNamespace(c, namespaces...) {
			out = append(out, c)
		}
	}
	return out
}

// FindPath sigue una ruta relativa "A/B/C" de nombres locales. Devuelve nil si algún
// tramo no existe.
func FindPath(el *etree.Element, path string, namespaces ...string) *etree.Element {
	cur := el
	for _, step := range strings.Split(path, "/") {
		if step == "" {
			continue
		}
		cur = FindChild(cur, step, namespaces...)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// FindDescendants recorre el subárbol en profundidad (orden de documento) y devuelve los
// elementos con ese nombre local, sin incluir el.
func FindDescendants(el *etree.Element, local string, namespaces ...string) []*etree.Element {
	var out []*etree.Element
	var walk func(*etree.Element)
	walk = func(e *etree.Element) {
		for _, c := range e.ChildElements() {
			if c.Tag == local && InNamespace(c, namespaces...) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	if el != nil {
		walk(el)
	}
	return out
}

// FindFirstDescendant es FindDescendants quedándose con el primero.
func FindFirstDescendant(el *etree.Element, local string, namespaces ...string) *etree.Element {
	if found := FindDescendants(el, local, namespaces...); len(found) > 0 {
		return found[0]
	}
	return nil
}

// FindByID busca en todo el árbol de root el único elemento con atributo ID=id.
func FindByID(root *etree.Element, id string) (*etree.Element, error) {
	var found []*etree.Element
	var walk func(*etree.Element)
	walk = func(e *etree.Element) {
		for _, a := range e.Attr {
			if a.Space == "" && a.Key == IDAttr && a.Value == id {
				found = append(found, e)
				break
			}
		}
		for _, c := range e.ChildElements() {
			walk(c)
		}
	}
	walk(root)

	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %q", ErrIDNotFound, id)
	case 1:
		return found[0], nil
	}
	return nil, fmt.Errorf("%w: %q (%d elementos)", ErrDuplicateID, id, len(found))
}

// Path arma la ruta de nombres locales desde la raíz, p. ej. "DTE/Documento/Encabezado".
func Path(el *etree.Element) string {
	var parts []string
	for e := el; e != nil && e.Tag != ""; e = e.Parent() {
		parts = append(parts, e.Tag)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

// Text devuelve el texto directo del elemento sin espacios alrededor.
func Text(el *etree.Element) string {
	if el == nil {
		return ""
	}
	return strings.TrimSpace(el.Text())
}

// IndexPath devuelve las posiciones (en Child) que llevan de ancestor a el.
// Sirve para ubicar el mismo nodo en una copia del subárbol.
func IndexPath(ancestor, el *etree.Element) ([]int, bool) {
	var path []int
	for e := el; e != ancestor; e = e.Parent() {
		if e == nil {
			return nil, false
		}
		path = append(path, e.Index())
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, true
}

// FollowIndexPath recorre en el una ruta obtenida con IndexPath.
func FollowIndexPath(el *etree.Element, path []int) *etree.Element {
	cur := el
	for _, i := range path {
		if i < 0 || i >= len(cur.Child) {
			return nil
		}
		next, ok := cur.Child[i].(*etree.Element)
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}
