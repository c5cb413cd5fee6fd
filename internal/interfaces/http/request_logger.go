package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/secretline/lib-cl-sii-go/pkg/logger"
)

// RequestLogger registra cada request con método, ruta, status y latencia.
// Los 5xx van a error y los 4xx a warn.
func RequestLogger(log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		ev := log.Info()
		switch {
		case status >= fiber.StatusInternalServerError:
			ev = log.Error().Err(err)
		case status >= fiber.StatusBadRequest:
			ev = log.Warn()
		}
		ev.Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Int("bytes_in", len(c.Body())).
			Str("subject", GetSubject(c)).
			Msg("http request")
		return err
	}
}
