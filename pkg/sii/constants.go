package sii

// =============================================================================
// Espacios de nombres
// =============================================================================

const (
	NamespaceDTE  = "http://www.sii.cl/SiiDte"
	NamespaceDSig = "http://www.w3.org/2000/09/xmldsig#"
	DTEVersion10  = "1.0"
	AECVersion10  = "1.0"
)

// =============================================================================
// Rangos de campos (SiiTypes_v10.xsd)
// =============================================================================

const (
	// FolioType: xs:positiveInteger con totalDigits 10.
	DTEFolioMinValue int64 = 1
	DTEFolioMaxValue int64 = 9_999_999_999

	// MontoType / MntTotal: entero no negativo de hasta 18 dígitos (pesos).
	DTEMontoTotalMinValue int64 = 0
	DTEMontoTotalMaxValue int64 = 999_999_999_999_999_999

	// Largo máximo de "RznSoc" y "RznSocRecep".
	RazonSocialLongMaxLength = 100
	// Largo máximo de "GiroEmis".
	GiroMaxLength            = 80

	CesionSeqMinValue   int64 = 1
	CesionMontoMinValue int64 = 0
)

// Formatos de fecha del SII: las fechas y timestamps no llevan zona horaria.
const (
	DateFormat      = "2006-01-02"
	TimestampFormat = "2006-01-02T15:04:05"
	// SigningTimeZone es la zona en la que el SII interpreta TmstFirma.
	SigningTimeZone = "America/Santiago"
)
