package http

import (
	stdhttp "net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/secretline/lib-cl-sii-go/internal/application/dto"
	"github.com/secretline/lib-cl-sii-go/internal/application/verification"
	"github.com/secretline/lib-cl-sii-go/pkg/jwt"
	"github.com/secretline/lib-cl-sii-go/pkg/logger"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	ServiceName    string
	Verification   *verification.Service
	Report         *verification.ReportUseCase
	MetricsHandler stdhttp.Handler // nil: sin /metrics
	RegistryActive bool
	JWTSecret      string // vacío: /api/v1 sin autenticación
	Logger         *logger.Logger // nil: sin log de requests
}

// Router registra /health, /metrics y las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	if deps.Logger != nil {
		app.Use(RequestLogger(deps.Logger))
	}
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(dto.HealthResponse{Status: "ok", Service: deps.ServiceName, Registry: deps.RegistryActive})
	})
	if deps.MetricsHandler != nil {
		app.Get("/metrics", adaptor.HTTPHandler(deps.MetricsHandler))
	}

	api := app.Group("/api/v1")
	if deps.JWTSecret != "" {
		api.Use(AuthMiddleware(deps.JWTSecret), RequireScope(jwt.ScopeVerify))
	}

	dteHandler := NewDTEHandler(deps.Verification, deps.Report)
	dte := api.Group("/dte")
	dte.Post("/verify", dteHandler.Verify)
	dte.Post("/report", dteHandler.Report)
	dte.Get("/verifications/:slug", dteHandler.GetVerification)
}
