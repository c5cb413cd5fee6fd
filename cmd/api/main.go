package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/secretline/lib-cl-sii-go/docs"
	"github.com/secretline/lib-cl-sii-go/internal/application/verification"
	"github.com/secretline/lib-cl-sii-go/internal/bootstrap"
	"github.com/secretline/lib-cl-sii-go/internal/domain/repository"
	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/metrics"
	infrapdf "github.com/secretline/lib-cl-sii-go/internal/infrastructure/pdf"
	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/postgres"
	httpRouter "github.com/secretline/lib-cl-sii-go/internal/interfaces/http"
	"github.com/secretline/lib-cl-sii-go/pkg/config"
	"github.com/secretline/lib-cl-sii-go/pkg/logger"
)

const swaggerFile = "./docs/swagger.json"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Int("max_document_bytes", cfg.Verifier.MaxDocumentBytes).
		Msg("iniciando aplicación")

	verifier, err := bootstrap.NewVerifier(cfg.Verifier)
	if err != nil {
		log.Fatal().Err(err).Msg("verificador de firmas")
	}
	if cfg.Verifier.TrustRootsPath == "" {
		log.Warn().Msg("sin DTE_TRUST_ROOTS_PATH: no se valida la cadena de certificados")
	}
	opts, err := bootstrap.ServiceOptions(cfg.Verifier)
	if err != nil {
		log.Fatal().Err(err).Msg("opciones del pipeline")
	}

	// Registro de verificaciones: solo si hay DB configurada.
	ctx := context.Background()
	var repo repository.DTEVerificationRepository
	if cfg.DB.Enabled() {
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("conexión a PostgreSQL")
		}
		defer pool.Close()
		repo = postgres.NewDTEVerificationRepository(pool)
		log.Info().Str("host", cfg.DB.Host).Msg("registro de verificaciones habilitado")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	service := verification.NewService(verifier, repo, metrics.New(reg), log, opts)
	reportUC := verification.NewReportUseCase(service, infrapdf.NewMarotoPDFGenerator())

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		BodyLimit:    cfg.HTTP.BodyLimit,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 30,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	if _, err := os.Stat(swaggerFile); err == nil {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/",
			FilePath: swaggerFile,
			Path:     "docs",
			Title:    "DTE Verifier API",
		}))
	}

	httpRouter.Router(app, httpRouter.RouterDeps{
		ServiceName:    cfg.App.Name,
		Verification:   service,
		Report:         reportUC,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		RegistryActive: repo != nil,
		JWTSecret:      cfg.JWT.Secret,
		Logger:         log,
	})
	if cfg.JWT.Secret == "" {
		log.Warn().Msg("JWT_SECRET vacío: /api/v1 sin autenticación")
	}

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
