package builder

import (
	"context"
	"sync"

	"github.com/hermeznetwork/hermez-node/log"

	"github.com/mevshield/coordinator/internal/pkg/database/batchdb"
	"github.com/mevshield/coordinator/internal/pkg/model"
	"github.com/mevshield/coordinator/internal/pkg/service/bridge"
	"github.com/mevshield/coordinator/internal/pkg/service/coordinator"
	"github.com/mevshield/coordinator/internal/pkg/service/dispatcher"
	"github.com/mevshield/coordinator/internal/pkg/service/listener"
	"github.com/mevshield/coordinator/internal/pkg/service/phaseticker"
)

// Worker runs the background jobs named by the config's job list.
type Worker struct {
	cfg  model.JobConfig
	jobs map[string]model.IJob
}

func NewWorker(configFile string) (*Worker, error) {
	c, err := loadJobConfig(configFile)
	if err != nil {
		return nil, err
	}

	db, err := NewPostgres(&c.Database)
	if err != nil {
		return nil, err
	}
	if err := batchdb.Migrate(db); err != nil {
		return nil, err
	}

	c.Redis.Prefix += ":" + c.Config.Network
	r, err := New(&c.Redis)
	if err != nil {
		return nil, err
	}

	privKey, err := loadSignerKey()
	if err != nil {
		return nil, err
	}

	repo := batchdb.NewBatchDB(db)
	evmBridge := bridge.NewEVMBridge(&c.Config, privKey)
	svc := coordinator.NewService(repo, evmBridge, r, dispatcher.New())

	jobs := map[string]model.IJob{
		model.ServicePhaseTicker: phaseticker.NewJob(&c.Config, repo, svc),
		model.ServiceListener:    listener.NewJob(&c.Config, evmBridge, repo, r),
	}

	return &Worker{
		cfg:  c.Config,
		jobs: jobs,
	}, nil
}

func (w *Worker) Run() error {
	var wg sync.WaitGroup

	for _, name := range w.cfg.Jobs {
		job, existed := w.jobs[name]
		if !existed {
			log.Warnf("job %s not supported", name)
			continue
		}
		wg.Add(1)
		go func(j model.IJob) {
			defer wg.Done()
			j.Run(context.Background())
		}(job)
	}

	wg.Wait()
	return nil
}
