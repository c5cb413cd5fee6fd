package siitest

import (
	"testing"

	"github.com/beevik/etree"
	"golang.org/x/text/encoding/charmap"

	"github.com/secretline/lib-cl-sii-go/pkg/sii"
)

// DTE describe un DTE de prueba. Los campos son texto para poder inyectar valores
// inválidos; un campo opcional vacío no se escribe.
type DTE struct {
	Container   string // Documento, Exportaciones o Liquidacion
	ID          string
	Tipo        string
	Folio       string
	FchEmis     string
	FchVenc     string
	RUTEmisor   string
	RznSoc      string
	GiroEmis    string
	RUTRecep    string
	RznSocRecep string
	MntNeto     string
	MntExe      string
	TasaIVA     string
	IVA         string
	MntTotal    string
	TmstFirma   string
}

// DefaultDTE es una factura electrónica afecta con valores conocidos.
func DefaultDTE() DTE {
	return DTE{
		Container:   "Documento",
		ID:          "MiPE76354771-13419",
		Tipo:        "33",
		Folio:       "170",
		FchEmis:     "2019-04-01",
		FchVenc:     "2019-05-01",
		RUTEmisor:   "76354771-K",
		RznSoc:      "INGENIERIA ENACON SPA",
		GiroEmis:    "Ingeniería y Construcción",
		RUTRecep:    "96790240-3",
		RznSocRecep: "MINERA LOS PELAMBRES",
		MntNeto:     "2517900",
		TasaIVA:     "19",
		IVA:         "478401",
		MntTotal:    "2996301",
		TmstFirma:   "2019-04-01T01:36:40",
	}
}

func addText(parent *etree.Element, tag, value string) {
	if value == "" {
		return
	}
	parent.CreateElement(tag).SetText(value)
}

// Element arma el elemento DTE sin firma.
func (d DTE) Element() *etree.Element {
	root := etree.NewElement("DTE")
	root.CreateAttr("xmlns", sii.NamespaceDTE)
	root.CreateAttr("version", sii.DTEVersion10)

	container := root.CreateElement(d.Container)
	container.CreateAttr("ID", d.ID)
	enc := container.CreateElement("Encabezado")
	idDoc := enc.CreateElement("IdDoc")
	addText(idDoc, "TipoDTE", d.Tipo)
	addText(idDoc, "Folio", d.Folio)
	addText(idDoc, "FchEmis", d.FchEmis)
	addText(idDoc, "FchVenc", d.FchVenc)
	emisor := enc.CreateElement("Emisor")
	addText(emisor, "RUTEmisor", d.RUTEmisor)
	addText(emisor, "RznSoc", d.RznSoc)
	addText(emisor, "GiroEmis", d.GiroEmis)
	receptor := enc.CreateElement("Receptor")
	addText(receptor, "RUTRecep", d.RUTRecep)
	addText(receptor, "RznSocRecep", d.RznSocRecep)
	totales := enc.CreateElement("Totales")
	addText(totales, "MntNeto", d.MntNeto)
	addText(totales, "MntExe", d.MntExe)
	addText(totales, "TasaIVA", d.TasaIVA)
	addText(totales, "IVA", d.IVA)
	addText(totales, "MntTotal", d.MntTotal)
	det := container.CreateElement("Detalle")
	addText(det, "NroLinDet", "1")
	addText(det, "NmbItem", "Servicio de ingeniería")
	addText(det, "MontoItem", d.MntNeto)
	addText(container, "TmstFirma", d.TmstFirma)
	return root
}

// Document arma el DTE sin firma como documento.
func (d DTE) Document() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="ISO-8859-1"`)
	doc.SetRoot(d.Element())
	return doc
}

// Signed arma y firma el DTE con la identidad dada.
func (d DTE) Signed(t testing.TB, id Identity, opts SignOptions) *etree.Document {
	t.Helper()
	doc := d.Document()
	if err := SignDTE(doc, id, opts); err != nil {
		t.Fatalf("siitest: firmar DTE: %v", err)
	}
	return doc
}

// Cesion describe una cesión del AEC. El IdDTE se toma del DTE cedido.
type Cesion struct {
	ID                    string
	Seq                   string
	CedenteRUT            string
	CedenteRazonSocial    string
	CesionarioRUT         string
	CesionarioRazonSocial string
	MontoCesion           string
	UltimoVencimiento     string
	TmstCesion            string
	EmailDeudor           string
}

// AEC describe un Archivo Electrónico de Cesión de prueba.
type AEC struct {
	ID             string
	RutCedente     string
	RutCesionario  string
	NmbContacto    string
	TmstFirmaEnvio string
	DTE            DTE
	Cesiones       []Cesion
}

// DefaultAEC cede DefaultDTE una vez.
func DefaultAEC() AEC {
	return AEC{
		ID:             "DocumentoAEC_76354771-K_33_170",
		RutCedente:     "76354771-K",
		RutCesionario:  "76389992-6",
		NmbContacto:    "ANGEL PEZO",
		TmstFirmaEnvio: "2019-04-05T12:57:32",
		DTE:            DefaultDTE(),
		Cesiones: []Cesion{{
			ID:                    "DocumentoCesion_76354771-K_33_170_1",
			Seq:                   "1",
			CedenteRUT:            "76354771-K",
			CedenteRazonSocial:    "INGENIERIA ENACON SPA",
			CesionarioRUT:         "76389992-6",
			CesionarioRazonSocial: "ST CAPITAL S.A.",
			MontoCesion:           "2996301",
			UltimoVencimiento:     "2019-05-01",
			TmstCesion:            "2019-04-05T12:57:32",
			EmailDeudor:           "pagos@pelambres.cl",
		}},
	}
}

// Signed arma el AEC y lo firma de adentro hacia afuera: el DTE cedido, cada cesión y
// finalmente DocumentoAEC.
func (a AEC) Signed(t testing.TB, id Identity) *etree.Document {
	t.Helper()
	root := etree.NewElement("AEC")
	root.CreateAttr("xmlns", sii.NamespaceDTE)
	root.CreateAttr("version", sii.AECVersion10)
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="ISO-8859-1"`)
	doc.SetRoot(root)

	documento := root.CreateElement("DocumentoAEC")
	documento.CreateAttr("ID", a.ID)
	caratula := documento.CreateElement("Caratula")
	caratula.CreateAttr("version", "1.0")
	addText(caratula, "RutCedente", a.RutCedente)
	addText(caratula, "RutCesionario", a.RutCesionario)
	addText(caratula, "NmbContacto", a.NmbContacto)
	addText(caratula, "TmstFirmaEnvio", a.TmstFirmaEnvio)

	cesiones := documento.CreateElement("Cesiones")
	cedido := cesiones.CreateElement("DTECedido")
	cedido.CreateAttr("version", "1.0")
	docCedido := cedido.CreateElement("DocumentoDTECedido")
	docCedido.CreateAttr("ID", a.ID+"_DTE")
	dteEl := a.DTE.Element()
	docCedido.AddChild(dteEl)
	if err := signContainer(dteEl, id, SignOptions{}); err != nil {
		t.Fatalf("siitest: firmar DTE cedido: %v", err)
	}
	addText(docCedido, "TmstFirma", a.TmstFirmaEnvio)
	if _, err := SignElement(cedido, docCedido, id, SignOptions{}); err != nil {
		t.Fatalf("siitest: firmar DTECedido: %v", err)
	}

	for _, c := range a.Cesiones {
		cesion := cesiones.CreateElement("Cesion")
		cesion.CreateAttr("version", "1.0")
		dc := cesion.CreateElement("DocumentoCesion")
		dc.CreateAttr("ID", c.ID)
		addText(dc, "SeqCesion", c.Seq)
		idDTE := dc.CreateElement("IdDTE")
		addText(idDTE, "TipoDTE", a.DTE.Tipo)
		addText(idDTE, "RUTEmisor", a.DTE.RUTEmisor)
		addText(idDTE, "RUTReceptor", a.DTE.RUTRecep)
		addText(idDTE, "Folio", a.DTE.Folio)
		addText(idDTE, "FchEmis", a.DTE.FchEmis)
		addText(idDTE, "MntTotal", a.DTE.MntTotal)
		cedente := dc.CreateElement("Cedente")
		addText(cedente, "RUT", c.CedenteRUT)
		addText(cedente, "RazonSocial", c.CedenteRazonSocial)
		addText(cedente, "Direccion", "Av. Apoquindo 4501, Las Condes")
		addText(cedente, "eMail", "cesiones@enacon.cl")
		cesionario := dc.CreateElement("Cesionario")
		addText(cesionario, "RUT", c.CesionarioRUT)
		addText(cesionario, "RazonSocial", c.CesionarioRazonSocial)
		addText(cesionario, "Direccion", "Isidora Goyenechea 2800, Las Condes")
		addText(cesionario, "eMail", "operaciones@stcapital.cl")
		addText(dc, "MontoCesion", c.MontoCesion)
		addText(dc, "UltimoVencimiento", c.UltimoVencimiento)
		addText(dc, "eMailDeudor", c.EmailDeudor)
		addText(dc, "TmstCesion", c.TmstCesion)
		if _, err := SignElement(cesion, dc, id, SignOptions{}); err != nil {
			t.Fatalf("siitest: firmar cesión %s: %v", c.Seq, err)
		}
	}

	if _, err := SignElement(root, documento, id, SignOptions{}); err != nil {
		t.Fatalf("siitest: firmar DocumentoAEC: %v", err)
	}
	return doc
}

// Bytes serializa el documento.
func Bytes(t testing.TB, doc *etree.Document) []byte {
	t.Helper()
	b, err := doc.WriteToBytes()
	if err != nil {
		t.Fatalf("siitest: serializar: %v", err)
	}
	return b
}

// Latin1 serializa y codifica en ISO-8859-1, como circulan los DTE.
func Latin1(t testing.TB, doc *etree.Document) []byte {
	t.Helper()
	b, err := charmap.ISO8859_1.NewEncoder().Bytes(Bytes(t, doc))
	if err != nil {
		t.Fatalf("siitest: codificar ISO-8859-1: %v", err)
	}
	return b
}
