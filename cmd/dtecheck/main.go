// dtecheck verifica en paralelo archivos DTE/AEC y emite una línea JSON por archivo.
//
//	dtecheck [--concurrency N] [--encoding ISO-8859-1] [--roots raices.pem] [--allow-self-signed] [--full] rutas...
//
// Las rutas pueden ser archivos o directorios; en directorios se recorren los *.xml.
// Código de salida: 0 si todos los documentos fueron aceptados, 1 si alguno no, 2 ante
// errores de uso o configuración.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/secretline/lib-cl-sii-go/internal/application/verification"
	"github.com/secretline/lib-cl-sii-go/internal/bootstrap"
	"github.com/secretline/lib-cl-sii-go/pkg/config"
	"github.com/secretline/lib-cl-sii-go/pkg/logger"
)

const (
	exitOK       = 0
	exitRejected = 1
	exitUsage    = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// line es la salida por archivo.
type line struct {
	File     string               `json:"file"`
	Outcome  verification.Outcome `json:"outcome"`
	Accepted bool                 `json:"accepted"`
	Variant  string               `json:"variant,omitempty"`
	Slug     string               `json:"slug,omitempty"`
	Reason   string               `json:"reason,omitempty"`
	Error    string               `json:"error,omitempty"`
	Result   json.RawMessage      `json:"result,omitempty"`
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, "configuración:", err)
		return exitUsage
	}

	flags := pflag.NewFlagSet("dtecheck", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	concurrency := flags.IntP("concurrency", "c", cfg.Verifier.BatchConcurrency, "documentos verificados en paralelo")
	encoding := flags.StringP("encoding", "e", "", "hint de codificación de los archivos")
	roots := flags.String("roots", cfg.Verifier.TrustRootsPath, "raíces de confianza (PEM o .p12)")
	rootsPassword := flags.String("roots-password", cfg.Verifier.TrustRootsPassword, "password del .p12 de raíces")
	allowSelfSigned := flags.Bool("allow-self-signed", cfg.Verifier.AllowSelfSigned, "aceptar certificados autofirmados")
	full := flags.Bool("full", false, "incluir el resultado completo en cada línea")
	logLevel := flags.String("log-level", "warn", "nivel de log en stderr")
	if err := flags.Parse(args); err != nil {
		return exitUsage
	}
	if flags.NArg() == 0 {
		fmt.Fprintln(stderr, "uso: dtecheck [flags] rutas...")
		flags.PrintDefaults()
		return exitUsage
	}

	vcfg := cfg.Verifier
	vcfg.BatchConcurrency = *concurrency
	vcfg.TrustRootsPath = *roots
	vcfg.TrustRootsPassword = *rootsPassword
	vcfg.AllowSelfSigned = *allowSelfSigned

	log := logger.NewWithWriter(stderr, *logLevel)

	verifier, err := bootstrap.NewVerifier(vcfg)
	if err != nil {
		log.Error().Err(err).Msg("verificador de firmas")
		return exitUsage
	}
	opts, err := bootstrap.ServiceOptions(vcfg)
	if err != nil {
		log.Error().Err(err).Msg("opciones del pipeline")
		return exitUsage
	}
	service := verification.NewService(verifier, nil, nil, log, opts)

	files, err := collect(flags.Args())
	if err != nil {
		log.Error().Err(err).Msg("rutas")
		return exitUsage
	}
	inputs := make([]verification.Input, len(files))
	for i, f := range files {
		inputs[i] = verification.Input{
			Name:     f,
			Encoding: *encoding,
			Read:     func() ([]byte, error) { return os.ReadFile(f) },
		}
	}

	items, err := service.ProcessBatch(ctx, inputs)
	if err != nil {
		log.Error().Err(err).Msg("lote interrumpido")
	}

	code := exitOK
	enc := json.NewEncoder(stdout)
	for _, item := range items {
		out := toLine(item, *full)
		if !out.Accepted {
			code = exitRejected
		}
		if err := enc.Encode(out); err != nil {
			log.Error().Err(err).Msg("escribir salida")
			return exitUsage
		}
	}
	if err != nil && code == exitOK {
		code = exitRejected
	}
	return code
}

func toLine(item verification.BatchItem, full bool) line {
	out := line{
		File:     item.Name,
		Outcome:  item.Outcome(),
		Accepted: item.Err == nil && item.Result.Accepted,
		Variant:  string(item.Result.Variant),
		Slug:     item.Result.Slug,
	}
	if item.Err != nil {
		out.Error = item.Err.Error()
		return out
	}
	if !item.Result.Accepted {
		out.Reason = string(item.Result.Verdict.Reason)
		for _, v := range item.Result.Signatures {
			if out.Reason == "" && !v.Valid {
				out.Reason = string(v.Reason)
			}
		}
	}
	if full {
		raw, err := json.Marshal(item.Result)
		if err != nil {
			out.Error = fmt.Sprintf("serializar resultado: %v", err)
			return out
		}
		out.Result = raw
	}
	return out
}

// collect expande directorios a sus *.xml, en orden lexicográfico.
func collect(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".xml") {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	if len(files) == 0 {
		return nil, errors.New("no hay archivos .xml que verificar")
	}
	return files, nil
}
