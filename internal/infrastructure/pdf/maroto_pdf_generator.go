// Package pdf genera el informe de verificación de un DTE o AEC.
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Tipo DTE + Folio      │  VÁLIDO / RECHAZADO         │
//	│  ─────────────────────────────────────────────────────────  │
//	│  EMISOR / RECEPTOR: RUT + Razón social                      │
//	│  TOTALES: Neto / Exento / IVA / Total                       │
//	│  CESIONES (solo AEC)                                        │
//	│  ─────────────────────────────────────────────────────────  │
//	│  FIRMAS: ruta + resultado + motivo                          │
//	│  CERTIFICADO: sujeto, emisor, vigencia                      │
//	│  ─────────────────────────────────────────────────────────  │
//	│  FOOTER: QR del slug + SHA-256 del documento                │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"fmt"
	"strconv"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"

	"github.com/secretline/lib-cl-sii-go/internal/application/verification"
	"github.com/secretline/lib-cl-sii-go/internal/domain/dte"
	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/sii/xmldsig"
)

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 0, Green: 57, Blue: 166}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
	colorOK      = &props.Color{Red: 0, Green: 128, Blue: 60}
	colorFail    = &props.Color{Red: 190, Green: 30, Blue: 45}
)

// ── Generator ─────────────────────────────────────────────────────────────────

var _ verification.ReportGenerator = (*MarotoPDFGenerator)(nil)

// MarotoPDFGenerator implementa verification.ReportGenerator usando Maroto v2.
type MarotoPDFGenerator struct{}

// NewMarotoPDFGenerator construye el generador.
func NewMarotoPDFGenerator() *MarotoPDFGenerator { return &MarotoPDFGenerator{} }

// GenerateReport genera el PDF y devuelve sus bytes.
func (g *MarotoPDFGenerator) GenerateReport(_ context.Context, res verification.Result) ([]byte, error) {
	l2, cesiones, err := documentData(res.Record)
	if err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("Informe de verificación DTE", true).
		WithAuthor(l2.EmisorRazonSocial, true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(headerRow(res, l2))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(partiesRow(l2))
	m.AddRows(totalsRow(l2))
	if len(cesiones) > 0 {
		m.AddRows(sectionTitle("CESIONES"))
		m.AddRows(cesionRows(cesiones)...)
	}

	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(sectionTitle("FIRMAS ELECTRÓNICAS"))
	m.AddRows(signatureRows(res)...)
	if c := res.Verdict.Certificate; c != nil {
		m.AddRows(certificateRows(c)...)
	}

	m.AddRows(line.NewRow(3))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	m.AddRows(footerRow(res))

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return doc.GetBytes(), nil
}

// documentData extrae el DTE (directo o cedido) y las cesiones.
func documentData(r dte.Record) (dte.DteDataL2, []dte.AecXmlCesionData, error) {
	switch rec := r.(type) {
	case dte.DteDataL2:
		return rec, nil, nil
	case dte.AecXmlData:
		return rec.Dte, rec.Cesiones(), nil
	}
	return dte.DteDataL2{}, nil, fmt.Errorf("pdf: registro %T no soportado", r)
}

// ── Secciones ─────────────────────────────────────────────────────────────────

// headerRow: tipo y folio (izq), resultado global (der).
func headerRow(res verification.Result, d dte.DteDataL2) core.Row {
	status, color := "VÁLIDO", colorOK
	if !res.Accepted {
		status, color = "RECHAZADO", colorFail
	}
	return row.New(20).Add(
		col.New(8).Add(
			text.New(nonEmpty(d.TipoDTE.Name(), "DTE tipo "+d.TipoDTE.String()), props.Text{
				Style: fontstyle.Bold, Size: 12, Color: colorPrimary, Top: 1,
			}),
			text.New(fmt.Sprintf("Folio N° %d   |   Emitido el %s", d.Folio, d.FechaEmision), props.Text{
				Size: 9, Top: 8, Color: colorGray,
			}),
			text.New(string(res.Variant), props.Text{Size: 7, Top: 14, Color: colorGray}),
		),
		col.New(4).Add(
			text.New("RESULTADO", props.Text{
				Style: fontstyle.Bold, Size: 8, Align: align.Right, Color: colorGray, Top: 1,
			}),
			text.New(status, props.Text{
				Style: fontstyle.Bold, Size: 14, Align: align.Right, Color: color, Top: 7,
			}),
		),
	)
}

// partiesRow: emisor y receptor lado a lado.
func partiesRow(d dte.DteDataL2) core.Row {
	party := func(title, rut, name, extra string) core.Col {
		return col.New(6).Add(
			text.New(title, props.Text{Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1}),
			text.New(name, props.Text{Style: fontstyle.Bold, Size: 10, Top: 6}),
			text.New("RUT: "+rut, props.Text{Size: 8, Top: 12, Color: colorGray}),
			text.New(extra, props.Text{Size: 8, Top: 16, Color: colorGray}),
		)
	}
	return row.New(22).Add(
		party("EMISOR", d.EmisorRut.String(), d.EmisorRazonSocial, nonEmpty(d.EmisorGiro, "-")),
		party("RECEPTOR", d.ReceptorRut.String(), d.ReceptorRazonSocial, nonEmpty(d.ReceptorEmail, "-")),
	)
}

// totalsRow: bloque de totales alineado a la derecha.
func totalsRow(d dte.DteDataL2) core.Row {
	label := func(s string) core.Component {
		return text.New(s, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right, Right: 2})
	}
	value := func(s string) core.Component {
		return text.New(s, props.Text{Size: 9, Align: align.Right, Right: 1})
	}
	tasa := "-"
	if d.TasaIVA.Valid {
		tasa = d.TasaIVA.Decimal.String() + "%"
	}
	return row.New(28).Add(
		col.New(6),
		col.New(3).Add(
			label("Monto neto:"),
			label("Monto exento:"),
			label("IVA ("+tasa+"):"),
			text.New("TOTAL:", props.Text{
				Style: fontstyle.Bold, Size: 10, Align: align.Right, Color: colorPrimary, Right: 2,
			}),
		),
		col.New(3).Add(
			value(optionalMoney(d.MontoNeto)),
			value(optionalMoney(d.MontoExento)),
			value(optionalMoney(d.IVA)),
			text.New(money(d.MontoTotal), props.Text{
				Style: fontstyle.Bold, Size: 10, Align: align.Right, Color: colorPrimary, Right: 1,
			}),
		),
	)
}

func sectionTitle(s string) core.Row {
	return row.New(7).Add(col.New(12).Add(
		text.New(s, props.Text{Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 2}),
	))
}

// cesionRows: una fila por cesión.
func cesionRows(cesiones []dte.AecXmlCesionData) []core.Row {
	rows := make([]core.Row, 0, len(cesiones))
	for _, c := range cesiones {
		rows = append(rows, row.New(6).Add(
			col.New(1).Add(text.New("#"+strconv.FormatInt(c.Seq, 10), props.Text{Size: 8, Top: 1})),
			col.New(4).Add(text.New(c.CedenteRazonSocial+" ("+c.CedenteRut.String()+")", props.Text{Size: 8, Top: 1})),
			col.New(4).Add(text.New(c.CesionarioRazonSocial+" ("+c.CesionarioRut.String()+")", props.Text{Size: 8, Top: 1})),
			col.New(3).Add(text.New(money(c.Monto), props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1})),
		))
	}
	return rows
}

// signatureRows: la firma principal y, en un AEC, las anidadas.
func signatureRows(res verification.Result) []core.Row {
	verdicts := res.Signatures
	if len(verdicts) == 0 {
		verdicts = []xmldsig.Verdict{res.Verdict}
	}
	rows := make([]core.Row, 0, len(verdicts))
	for _, v := range verdicts {
		status, color := "válida", colorOK
		if !v.Valid {
			status, color = string(v.Reason), colorFail
		}
		rows = append(rows, row.New(6).Add(
			col.New(8).Add(text.New(v.SignaturePath, props.Text{Size: 7.5, Top: 1, Color: colorGray})),
			col.New(4).Add(text.New(status, props.Text{
				Style: fontstyle.Bold, Size: 8, Align: align.Right, Color: color, Top: 1, Right: 1,
			})),
		))
	}
	return rows
}

func certificateRows(c *xmldsig.CertificateInfo) []core.Row {
	detail := func(label, value string) core.Row {
		return row.New(5).Add(
			col.New(3).Add(text.New(label, props.Text{Style: fontstyle.Bold, Size: 7.5, Top: 1})),
			col.New(9).Add(text.New(value, props.Text{Size: 7.5, Top: 1, Color: colorGray})),
		)
	}
	return []core.Row{
		sectionTitle("CERTIFICADO FIRMANTE"),
		detail("Sujeto:", c.Subject),
		detail("Emisor:", c.Issuer),
		detail("Vigencia:", c.NotBefore.Format("02/01/2006")+" a "+c.NotAfter.Format("02/01/2006")),
		detail("SHA-256:", c.FingerprintSHA256),
	}
}

// footerRow: QR con el slug + hash del documento recibido.
func footerRow(res verification.Result) core.Row {
	return row.New(40).Add(
		col.New(3).Add(code.NewQr(res.Slug, props.Rect{Percent: 95, Center: true})),
		col.New(9).Add(
			text.New("Identificador: "+res.Slug, props.Text{Style: fontstyle.Bold, Size: 9, Top: 4, Left: 3}),
			text.New("SHA-256 del documento:", props.Text{Size: 7.5, Top: 12, Left: 3, Color: colorGray}),
			text.New(res.DocumentSHA256, props.Text{Size: 6.5, Top: 17, Left: 3, Color: colorGray}),
			text.New("Verificación local de estructura y firma XML-DSig. No consulta el estado del documento en el SII.",
				props.Text{Size: 6.5, Top: 26, Left: 3, Color: colorGray}),
		),
	)
}

// ── helpers ───────────────────────────────────────────────────────────────────

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

func optionalMoney(v dte.OptionalInt) string {
	if !v.Valid {
		return "-"
	}
	return money(v.Value)
}

// money formatea pesos con punto de miles: 2996301 → "$2.996.301".
func money(v int64) string {
	return "$" + formatMoney(decimal.NewFromInt(v).StringFixed(0))
}

// formatMoney inserta puntos de miles en un string numérico sin decimales.
func formatMoney(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	buf := make([]byte, 0, n+n/3)
	for i, c := range []byte(s) {
		if i > 0 && (n-i)%3 == 0 {
			buf = append(buf, '.')
		}
		buf = append(buf, c)
	}
	return string(buf)
}
