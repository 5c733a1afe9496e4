package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mealflow/mealflow/internal/audit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDecisionPrune removes expired permission-check decision rows.
	// The role change and permission logs are never pruned.
	TaskDecisionPrune = "audit:decision_prune"
)

// DecisionPrunePayload carries the retention window for a prune run.
type DecisionPrunePayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewDecisionPruneTask constructs an Asynq task.
func NewDecisionPruneTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(DecisionPrunePayload{RetentionHours: int(retention.Hours())})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDecisionPrune, data), nil
}

// DecisionPruneJob deletes decision log rows past their retention.
type DecisionPruneJob struct {
	audit  *audit.Service
	logger *slog.Logger
}

// NewDecisionPruneJob constructs the prune job.
func NewDecisionPruneJob(svc *audit.Service, logger *slog.Logger) *DecisionPruneJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &DecisionPruneJob{audit: svc, logger: logger}
}

// Handle processes TaskDecisionPrune tasks.
func (j *DecisionPruneJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload DecisionPrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetentionHours <= 0 {
		return asynq.SkipRetry
	}
	deleted, err := j.audit.PruneDecisions(ctx, time.Duration(payload.RetentionHours)*time.Hour)
	if err != nil {
		j.logger.Error("prune decisions", slog.Any("error", err))
		return err
	}
	j.logger.Info("pruned decision log", slog.Int64("deleted", deleted))
	return nil
}
