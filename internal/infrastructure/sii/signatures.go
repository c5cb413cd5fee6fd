package sii

import (
	"github.com/beevik/etree"

	"github.com/secretline/lib-cl-sii-go/internal/domain"
	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/xmlutil"
)

// MissingSignatures devuelve un SignatureNotFoundError por cada elemento que debe
// llevar una ds:Signature hija y no la trae. En un DTE es la raíz; en un AEC son el
// DTE cedido, DTECedido, cada Cesion y la raíz.
func MissingSignatures(doc *etree.Document) []*domain.SignatureNotFoundError {
	var missing []*domain.SignatureNotFoundError
	for _, el := range signatureHosts(doc.Root()) {
		if xmlutil.FindChild(el, "Signature", dsigNamespaces...) == nil {
			missing = append(missing, &domain.SignatureNotFoundError{Path: xmlutil.Path(el)})
		}
	}
	return missing
}

func signatureHosts(root *etree.Element) []*etree.Element {
	if root == nil {
		return nil
	}
	if root.Tag != "AEC" {
		return []*etree.Element{root}
	}
	var hosts []*etree.Element
	cesiones := xmlutil.FindPath(root, "DocumentoAEC/Cesiones", siiNamespaces...)
	if cesiones != nil {
		if cedido := xmlutil.FindChild(cesiones, "DTECedido", siiNamespaces...); cedido != nil {
			if nested := xmlutil.FindPath(cedido, "DocumentoDTECedido/DTE", siiNamespaces...); nested != nil {
				hosts = append(hosts, nested)
			}
			hosts = append(hosts, cedido)
		}
		hosts = append(hosts, xmlutil.FindChildren(cesiones, "Cesion", siiNamespaces...)...)
	}
	return append(hosts, root)
}
