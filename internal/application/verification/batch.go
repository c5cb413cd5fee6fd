package verification

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/secretline/lib-cl-sii-go/internal/domain"
)

// Input es un documento del lote. Si Read no es nil se invoca dentro del trabajador,
// así un lote grande de archivos no se carga completo en memoria.
type Input struct {
	Name     string
	Data     []byte
	Read     func() ([]byte, error)
	Encoding string
}

// BatchItem conserva el nombre y el desenlace de cada documento.
type BatchItem struct {
	Name   string
	Result Result
	Err    error
}

// Outcome del ítem.
func (i BatchItem) Outcome() Outcome { return Classify(i.Result, i.Err) }

// ProcessBatch procesa inputs en paralelo con a lo más Options.Concurrency trabajadores.
// Los documentos son independientes: el error de uno queda en su BatchItem y no
// detiene al resto. El resultado conserva el orden de inputs.
func (s *Service) ProcessBatch(ctx context.Context, inputs []Input) ([]BatchItem, error) {
	items := make([]BatchItem, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for i, in := range inputs {
		g.Go(func() error {
			items[i] = s.processInput(gctx, in)
			return nil
		})
	}
	_ = g.Wait()

	var accepted, structural int
	for _, it := range items {
		switch {
		case it.Err == nil && it.Result.Accepted:
			accepted++
		case domain.IsStructural(it.Err):
			structural++
		}
	}
	s.log.Info().
		Int("documents", len(inputs)).
		Int("accepted", accepted).
		Int("structural_errors", structural).
		Int("workers", s.opts.Concurrency).
		Msg("lote procesado")
	return items, ctx.Err()
}

func (s *Service) processInput(ctx context.Context, in Input) BatchItem {
	item := BatchItem{Name: in.Name}
	data := in.Data
	if in.Read != nil {
		var err error
		if data, err = in.Read(); err != nil {
			item.Err = err
			return item
		}
	}
	item.Result, item.Err = s.Process(ctx, data, in.Encoding)
	return item
}
