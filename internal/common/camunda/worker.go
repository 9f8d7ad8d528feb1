// internal/common/camunda/worker.go
package camunda

import (
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"commitment-reaper/internal/common/logger"
)

type WorkerConfig struct {
	TaskType      string
	MaxJobsActive int
	Timeout       time.Duration
}

// CamundaWorker subscribes one handler to one job type.
type CamundaWorker struct {
	worker   worker.JobWorker
	logger   logger.Logger
	taskType string
}

func NewWorker(client zbc.Client, cfg WorkerConfig, handler worker.JobHandler, log logger.Logger) *CamundaWorker {
	if cfg.MaxJobsActive <= 0 {
		cfg.MaxJobsActive = 1
	}

	step := client.NewJobWorker().
		JobType(cfg.TaskType).
		Handler(handler).
		MaxJobsActive(cfg.MaxJobsActive)
	if cfg.Timeout > 0 {
		step = step.Timeout(cfg.Timeout)
	}

	w := &CamundaWorker{
		worker:   step.Open(),
		logger:   log.WithFields(map[string]interface{}{"taskType": cfg.TaskType}),
		taskType: cfg.TaskType,
	}
	w.logger.Info("worker started", map[string]interface{}{"maxJobsActive": cfg.MaxJobsActive})
	return w
}

func (w *CamundaWorker) Stop() {
	w.logger.Info("stopping worker", nil)
	w.worker.Close()
	w.worker.AwaitClose()
}
