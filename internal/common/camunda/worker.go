package camunda

import (
	"fmt"
	"time"

	"service-dispatch/internal/common/config"
	"service-dispatch/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// JobHandler is implemented by every task worker.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job)
}

// Pool tracks the job workers opened by the process so they can be closed on shutdown.
type Pool struct {
	client  zbc.Client
	log     logger.Logger
	workers map[string]worker.JobWorker
}

func NewPool(client zbc.Client, log logger.Logger) *Pool {
	return &Pool{client: client, log: log, workers: make(map[string]worker.JobWorker)}
}

// Start opens a job worker for taskType unless the worker config disables it.
// It reports whether a worker was opened.
func (p *Pool) Start(taskType string, wcfg config.WorkerConfig, handler JobHandler) bool {
	if !wcfg.Enabled {
		p.log.Info("worker disabled", map[string]interface{}{"taskType": taskType})
		return false
	}
	maxJobs := wcfg.MaxJobsActive
	if maxJobs <= 0 {
		maxJobs = 5
	}
	timeout := time.Duration(wcfg.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	p.workers[taskType] = p.client.NewJobWorker().
		JobType(taskType).
		Handler(handler.Handle).
		MaxJobsActive(maxJobs).
		Timeout(timeout).
		Open()

	p.log.Info("worker started", map[string]interface{}{
		"taskType":      taskType,
		"maxJobsActive": maxJobs,
		"timeout_ms":    timeout.Milliseconds(),
	})
	return true
}

// Running lists the task types with an open worker.
func (p *Pool) Running() []string {
	out := make([]string, 0, len(p.workers))
	for taskType := range p.workers {
		out = append(out, taskType)
	}
	return out
}

// Close stops every worker and waits for in-flight jobs.
func (p *Pool) Close() {
	for taskType, w := range p.workers {
		w.Close()
		w.AwaitClose()
		p.log.Info("worker stopped", map[string]interface{}{"taskType": taskType})
	}
}

// HandlerConfig is the per-handler view of a workers.<task-type> config entry.
type HandlerConfig struct {
	Enabled       bool
	MaxJobsActive int
	Timeout       time.Duration
}

func DefaultHandlerConfig() *HandlerConfig {
	return &HandlerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30 * time.Second,
	}
}

// HandlerConfigFor resolves the handler config for taskType. A custom config wins
// over the app config.
func HandlerConfigFor(appConfig *config.Config, taskType string, custom *HandlerConfig) (*HandlerConfig, error) {
	cfg := custom
	if cfg == nil {
		cfg = DefaultHandlerConfig()
		if appConfig != nil {
			if wcfg, ok := appConfig.Workers[taskType]; ok {
				cfg.Enabled = wcfg.Enabled
				if wcfg.MaxJobsActive > 0 {
					cfg.MaxJobsActive = wcfg.MaxJobsActive
				}
				if wcfg.Timeout > 0 {
					cfg.Timeout = time.Duration(wcfg.Timeout) * time.Millisecond
				}
			}
		}
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("invalid configuration for %s: timeout must be positive", taskType)
	}
	if cfg.MaxJobsActive <= 0 {
		return nil, fmt.Errorf("invalid configuration for %s: max_jobs_active must be positive", taskType)
	}
	return cfg, nil
}
