package dbt

import (
	"context"

	"golang.org/x/sync/errgroup"
)

type groupEntry struct {
	e            *Engine
	begin, until uint64
}

// Group runs independent guest contexts on parallel workers. Contexts that
// share a *cpu.Mem need it in shared mode.
type Group struct {
	entries []groupEntry
}

func (g *Group) Add(e *Engine, begin, until uint64) {
	g.entries = append(g.entries, groupEntry{e, begin, until})
}

// Run starts every context and waits for all of them. The first error stops
// the others at their next block boundary, as does cancelling ctx.
func (g *Group) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			for _, ent := range g.entries {
				ent.e.Stop()
			}
		case <-done:
		}
	}()
	for _, ent := range g.entries {
		ent := ent
		eg.Go(func() error {
			return ent.e.Start(ent.begin, ent.until)
		})
	}
	err := eg.Wait()
	close(done)
	return err
}
