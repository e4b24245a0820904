package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/ecole-api/internal/dto"
	appErrors "github.com/noah-isme/ecole-api/pkg/errors"
	"github.com/noah-isme/ecole-api/pkg/jobs"
)

const maintenanceJobType = "enrollment_reconcile"

type reconcileRunner interface {
	Tasks() []string
	Run(ctx context.Context, task string) (*dto.ReconcileReport, error)
}

// jobQueue is the subset of jobs.Queue the maintenance service drives.
type jobQueue interface {
	Enqueue(job jobs.Job) (string, error)
	Status(id string) (jobs.Status, bool)
}

// MaintenanceService queues enrollment reconciliation tasks on a background worker pool.
type MaintenanceService struct {
	runner  reconcileRunner
	queue   jobQueue
	metrics *MetricsService
	logger  *zap.Logger
}

// NewMaintenanceService constructs a MaintenanceService. Use Handle as the queue handler.
func NewMaintenanceService(runner reconcileRunner, metrics *MetricsService, logger *zap.Logger) *MaintenanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaintenanceService{runner: runner, metrics: metrics, logger: logger}
}

// AttachQueue sets the queue jobs are pushed to.
func (s *MaintenanceService) AttachQueue(queue jobQueue) {
	s.queue = queue
}

// Handle executes one queued task.
func (s *MaintenanceService) Handle(ctx context.Context, job jobs.Job) (interface{}, error) {
	task, ok := job.Payload.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected maintenance payload %T", job.Payload)
	}
	report, err := s.runner.Run(ctx, task)
	if err != nil {
		s.metrics.RecordJob(task, string(jobs.StateFailed))
		return nil, err
	}
	s.metrics.RecordJob(task, string(jobs.StateSucceeded))
	return report, nil
}

// Enqueue validates the task name and queues it.
func (s *MaintenanceService) Enqueue(ctx context.Context, task string) (*dto.MaintenanceJob, error) {
	if !s.known(task) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown maintenance task %q", task))
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "maintenance queue is not running")
	}
	id, err := s.queue.Enqueue(jobs.Job{Type: maintenanceJobType, Payload: task})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue maintenance task")
	}
	s.metrics.RecordJob(task, string(jobs.StateQueued))
	s.logger.Info("maintenance task queued", zap.String("task", task), zap.String("job_id", id))
	return &dto.MaintenanceJob{JobID: id, Task: task}, nil
}

// Status returns the state of a queued task.
func (s *MaintenanceService) Status(ctx context.Context, jobID string) (*jobs.Status, error) {
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "maintenance job not found")
	}
	status, ok := s.queue.Status(jobID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "maintenance job not found")
	}
	return &status, nil
}

func (s *MaintenanceService) known(task string) bool {
	for _, t := range s.runner.Tasks() {
		if t == task {
			return true
		}
	}
	return false
}
