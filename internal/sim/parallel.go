package sim

import (
	"context"
	"fmt"

	"github.com/san-kum/dynsph/internal/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Ensemble runs independent configurations side by side, each on its own
// runtime and particle store.
type Ensemble struct {
	configs []*config.Config
	log     *logrus.Entry
	limit   int
}

// NewEnsemble runs at most limit members at once; zero runs all of them.
func NewEnsemble(configs []*config.Config, limit int, log *logrus.Entry) *Ensemble {
	return &Ensemble{configs: configs, limit: limit, log: log}
}

// Run returns one result per configuration in order. The first failing
// member cancels the others.
func (e *Ensemble) Run(ctx context.Context, setup func(i int, r *Run)) ([]*Result, error) {
	results := make([]*Result, len(e.configs))

	g, ctx := errgroup.WithContext(ctx)
	if e.limit > 0 {
		g.SetLimit(e.limit)
	}
	for i, cfg := range e.configs {
		g.Go(func() error {
			log := e.log
			if log != nil {
				log = log.WithField("member", i)
			}
			r, err := Build(cfg, log)
			if err != nil {
				return fmt.Errorf("member %d: %w", i, err)
			}
			defer r.Close()
			if setup != nil {
				setup(i, r)
			}
			res, err := r.Sim.Run(ctx, r.Config)
			results[i] = res
			if err != nil {
				return fmt.Errorf("member %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
