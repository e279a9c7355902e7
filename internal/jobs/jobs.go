// Package jobs runs background reconciliation through asynq.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/Nselenduna/inventory-sales-app/internal/domain"
)

const (
	QueueDefault = "default"

	// TaskReconcile asks the worker to run one sync cycle.
	TaskReconcile = "sync:reconcile"
)

type ReconcilePayload struct {
	ShopID string `json:"shop_id"`
	Reason string `json:"reason,omitempty"`
}

func NewReconcileTask(shopID, reason string) (*asynq.Task, error) {
	if shopID == "" {
		return nil, errors.New("jobs: shop id is required")
	}
	body, err := json.Marshal(ReconcilePayload{ShopID: shopID, Reason: reason})
	if err != nil {
		return nil, err
	}
	// A failed cycle is retried by the next one, so the task itself is not.
	return asynq.NewTask(TaskReconcile, body,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(0),
		asynq.Timeout(5*time.Minute),
	), nil
}

// Reconciler is the sync engine as seen by the job.
type Reconciler interface {
	Reconcile(ctx context.Context) (domain.SyncReport, bool)
}

type ReconcileJob struct {
	engine Reconciler
	shopID string
	log    zerolog.Logger
}

func NewReconcileJob(engine Reconciler, shopID string, log zerolog.Logger) *ReconcileJob {
	return &ReconcileJob{engine: engine, shopID: shopID, log: log}
}

// Handle runs one cycle. Tasks addressed to another shop are dropped.
func (j *ReconcileJob) Handle(ctx context.Context, task *asynq.Task) error {
	var payload ReconcilePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("jobs: decode reconcile payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.ShopID != j.shopID {
		j.log.Debug().Str("shop_id", payload.ShopID).Msg("reconcile task for another shop ignored")
		return nil
	}

	report, ran := j.engine.Reconcile(ctx)
	if !ran {
		j.log.Debug().Str("reason", payload.Reason).Msg("background reconcile did not run")
		return nil
	}
	event := j.log.Info()
	if report.Failed() > 0 {
		event = j.log.Warn()
	}
	event.Str("reason", payload.Reason).
		Int("failed", report.Failed()).
		Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).
		Msg("background reconcile finished")
	return nil
}

type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

type WorkerConfig struct {
	RedisOpts asynq.RedisClientOpt
	Logger    zerolog.Logger
	Handlers  []TaskHandler
	Cron      []CronRegistration
}

// Worker wraps the asynq server and the optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	log       zerolog.Logger
}

func NewWorker(cfg WorkerConfig) (*Worker, error) {
	logger := asynqLogger{log: cfg.Logger}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: 1,
		Queues: map[string]int{
			QueueDefault: 1,
		},
		Logger: logger,
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC, Logger: logger})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, fmt.Errorf("jobs: register %q: %w", entry.Spec, err)
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, log: cfg.Logger}, nil
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("jobs: worker not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Client submits reconcile tasks, for example from another process sharing
// the same Redis.
type Client struct {
	client *asynq.Client
	shopID string
}

func NewClient(redisOpts asynq.RedisClientOpt, shopID string) *Client {
	return &Client{client: asynq.NewClient(redisOpts), shopID: shopID}
}

func (c *Client) EnqueueReconcile(ctx context.Context, reason string) (*asynq.TaskInfo, error) {
	task, err := NewReconcileTask(c.shopID, reason)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

func (c *Client) Close() error {
	return c.client.Close()
}

// asynqLogger routes asynq's own logging through zerolog.
type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
