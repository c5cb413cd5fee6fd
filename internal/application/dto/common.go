package dto

// ErrorResponse cuerpo de error HTTP. Field es la ruta XML del campo que viola el
// modelo de datos, cuando aplica.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// HealthResponse cuerpo de GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Registry bool   `json:"registry"`
}
