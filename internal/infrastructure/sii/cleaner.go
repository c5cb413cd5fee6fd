package sii

import (
	"fmt"
	"sort"
	"strings"

	"github.com/beevik/etree"

	"github.com/secretline/lib-cl-sii-go/internal/domain"
	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/xmlutil"
	"github.com/secretline/lib-cl-sii-go/pkg/sii"
)

// Reglas del limpiador. Cada una repara un defecto observado en DTE reales sin tocar
// la forma canónica de los subárboles firmados.
const (
	// <DTE><DocPersonalizado>...</DocPersonalizado>: extensión de algunos proveedores,
	// hija directa de DTE y fuera del Documento firmado. Se elimina.
	RuleRemoveDocPersonalizado = "remove-doc-personalizado"
	// <?xml-stylesheet ...?> y otras instrucciones a nivel de documento (no la declaración
	// xml). La C14N de un subárbol nunca las incluye. Se eliminan.
	RuleRemoveDocumentProcInst = "remove-document-proc-inst"
	// xmlns / xmlns:p cuyo valor repite la declaración vigente del mismo prefijo en un
	// ancestro. La C14N omite declaraciones superfluas. Se eliminan.
	RuleRemoveRedundantXmlns = "remove-redundant-xmlns"
	// ds:Signature hija de la raíz ubicada antes del contenedor del documento. Se mueve
	// al final de los hijos de la raíz.
	RuleMoveSignatureLast = "move-signature-last"
	// Raíz DTE/AEC sin namespace por defecto: se declara el del SII. Cambia la C14N del
	// subárbol firmado, por eso viene apagada; sirve solo para extraer datos.
	RuleSetMissingSIIXmlns = "set-missing-sii-xmlns"
)

type cleanerRule struct {
	name    string
	enabled bool
	apply   func(doc *etree.Document) int
}

// cleanerRules en orden de aplicación.
var cleanerRules = []cleanerRule{
	{name: RuleRemoveDocPersonalizado, enabled: true, apply: removeDocPersonalizado},
	{name: RuleRemoveDocumentProcInst, enabled: true, apply: removeDocumentProcInst},
	{name: RuleRemoveRedundantXmlns, enabled: true, apply: removeRedundantXmlns},
	{name: RuleMoveSignatureLast, enabled: true, apply: moveSignatureLast},
	{name: RuleSetMissingSIIXmlns, enabled: false, apply: setMissingSIIXmlns},
}

// CleanerRules devuelve los nombres de las reglas en orden de aplicación.
func CleanerRules() []string {
	names := make([]string, len(cleanerRules))
	for i, r := range cleanerRules {
		names[i] = r.name
	}
	return names
}

// CleanOptions sobreescribe el estado por defecto de cada regla.
type CleanOptions struct {
	Overrides map[string]bool
}

// NewCleanOptions arma opciones desde listas de reglas a habilitar y deshabilitar
// (típicamente de configuración). Un nombre desconocido es error.
func NewCleanOptions(enabled, disabled []string) (CleanOptions, error) {
	known := make(map[string]bool, len(cleanerRules))
	for _, r := range cleanerRules {
		known[r.name] = true
	}
	opts := CleanOptions{Overrides: map[string]bool{}}
	for _, lists := range []struct {
		names []string
		value bool
	}{{enabled, true}, {disabled, false}} {
		for _, n := range lists.names {
			n = strings.TrimSpace(n)
			if n == "" {
				continue
			}
			if !known[n] {
				return CleanOptions{}, fmt.Errorf("sii: regla de limpieza desconocida %q", n)
			}
			opts.Overrides[n] = lists.value
		}
	}
	return opts, nil
}

func (o CleanOptions) enabled(r cleanerRule) bool {
	if v, ok := o.Overrides[r.name]; ok {
		return v
	}
	return r.enabled
}

// AppliedRule informa cuántas veces se aplicó una regla.
type AppliedRule struct {
	Rule    string `json:"rule"`
	Matches int    `json:"matches"`
}

// CleanReport lista las reglas que modificaron el documento, en orden de aplicación.
type CleanReport struct {
	Applied []AppliedRule `json:"applied,omitempty"`
}

// Changed indica si alguna regla modificó el documento.
func (r CleanReport) Changed() bool { return len(r.Applied) > 0 }

// Clean verifica la forma del documento y aplica las reglas habilitadas sobre una copia.
// El árbol de entrada no se modifica. Es idempotente: limpiar el resultado no cambia nada.
func Clean(doc *etree.Document, opts CleanOptions) (*etree.Document, CleanReport, error) {
	if err := checkShape(doc); err != nil {
		return nil, CleanReport{}, err
	}
	out := xmlutil.CopyDocument(doc)

	var report CleanReport
	for _, r := range cleanerRules {
		if !opts.enabled(r) {
			continue
		}
		if n := r.apply(out); n > 0 {
			report.Applied = append(report.Applied, AppliedRule{Rule: r.name, Matches: n})
		}
	}
	return out, report, nil
}

// checkShape: raíz DTE o AEC (namespace SII o ninguno), DTE con un único contenedor,
// AEC con DocumentoAEC.
func checkShape(doc *etree.Document) error {
	root := doc.Root()
	if root == nil {
		return &domain.UncleanableDocumentError{Reason: "documento sin raíz"}
	}
	if !xmlutil.InNamespace(root, siiNamespaces...) {
		return &domain.UncleanableDocumentError{Reason: fmt.Sprintf("namespace de la raíz no reconocido: %q", root.NamespaceURI())}
	}
	switch root.Tag {
	case "DTE":
		n := 0
		for _, c := range dteContainers {
			n += len(xmlutil.FindChildren(root, c.tag, siiNamespaces...))
		}
		if n != 1 {
			return &domain.UncleanableDocumentError{Reason: fmt.Sprintf("DTE con %d contenedores (Documento, Exportaciones o Liquidacion)", n)}
		}
	case "AEC":
		if xmlutil.FindChild(root, "DocumentoAEC", siiNamespaces...) == nil {
			return &domain.UncleanableDocumentError{Reason: "AEC sin DocumentoAEC"}
		}
	default:
		return &domain.UncleanableDocumentError{Reason: fmt.Sprintf("raíz %q no corresponde a DTE ni AEC", root.Tag)}
	}
	return nil
}

func removeDocPersonalizado(doc *etree.Document) int {
	root := doc.Root()
	if root.Tag != "DTE" {
		return 0
	}
	n := 0
	for _, el := range xmlutil.FindChildren(root, "DocPersonalizado") {
		root.RemoveChild(el)
		n++
	}
	return n
}

func removeDocumentProcInst(doc *etree.Document) int {
	var targets []etree.Token
	for _, t := range doc.Child {
		if pi, ok := t.(*etree.ProcInst); ok && pi.Target != "xml" {
			targets = append(targets, t)
		}
	}
	for _, t := range targets {
		doc.RemoveChild(t)
	}
	return len(targets)
}

// nsDecl devuelve el prefijo declarado por el atributo ("" para el namespace por defecto).
func nsDecl(a etree.Attr) (prefix string, ok bool) {
	switch {
	case a.Space == "xmlns":
		return a.Key, true
	case a.Space == "" && a.Key == "xmlns":
		return "", true
	}
	return "", false
}

// inheritedNamespace busca la declaración vigente de prefix en los ancestros de el.
func inheritedNamespace(el *etree.Element, prefix string) (string, bool) {
	for p := el.Parent(); p != nil; p = p.Parent() {
		for _, a := range p.Attr {
			if pfx, ok := nsDecl(a); ok && pfx == prefix {
				return a.Value, true
			}
		}
	}
	return "", false
}

func removeRedundantXmlns(doc *etree.Document) int {
	n := 0
	var walk func(el *etree.Element)
	walk = func(el *etree.Element) {
		kept := el.Attr[:0]
		for _, a := range el.Attr {
			prefix, ok := nsDecl(a)
			if ok {
				inherited, found := inheritedNamespace(el, prefix)
				// xmlns="" sin default heredado tampoco declara nada.
				if (found && inherited == a.Value) || (!found && prefix == "" && a.Value == "") {
					n++
					continue
				}
			}
			kept = append(kept, a)
		}
		el.Attr = kept
		for _, c := range el.ChildElements() {
			walk(c)
		}
	}
	walk(doc.Root())
	return n
}

func moveSignatureLast(doc *etree.Document) int {
	root := doc.Root()
	sig := xmlutil.FindChild(root, "Signature", sii.NamespaceDSig)
	if sig == nil {
		return 0
	}
	containerTags := map[string]bool{"DocumentoAEC": true}
	for _, c := range dteContainers {
		containerTags[c.tag] = true
	}
	children := root.ChildElements()
	containerIdx := -1
	for _, c := range children {
		if containerTags[c.Tag] {
			containerIdx = c.Index()
			break
		}
	}
	if containerIdx < 0 || sig.Index() > containerIdx {
		return 0
	}
	root.RemoveChild(sig)
	root.AddChild(sig)
	return 1
}

func setMissingSIIXmlns(doc *etree.Document) int {
	root := doc.Root()
	if root.Space != "" || root.NamespaceURI() != "" {
		return 0
	}
	root.CreateAttr("xmlns", sii.NamespaceDTE)
	sortNamespaceFirst(root)
	return 1
}

// sortNamespaceFirst deja las declaraciones de namespace antes que los demás atributos,
// como se escriben habitualmente.
func sortNamespaceFirst(el *etree.Element) {
	sort.SliceStable(el.Attr, func(i, j int) bool {
		_, ni := nsDecl(el.Attr[i])
		_, nj := nsDecl(el.Attr[j])
		return ni && !nj
	})
}
