package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/crestwave/acs/internal/domain"
)

type TaskService struct {
	tasks   domain.TaskRepository
	devices domain.DeviceRepository
	log     *slog.Logger
}

func NewTaskService(tasks domain.TaskRepository, devices domain.DeviceRepository, log *slog.Logger) *TaskService {
	return &TaskService{tasks: tasks, devices: devices, log: log}
}

// queueableTypes are the task types the session layer can put on the wire.
// Synchronous workflow steps never enter the queue.
var queueableTypes = map[domain.TaskType]bool{
	domain.TaskGetParams:    true,
	domain.TaskSetParams:    true,
	domain.TaskGetNames:     true,
	domain.TaskReboot:       true,
	domain.TaskFactoryReset: true,
	domain.TaskDownload:     true,
	domain.TaskUpload:       true,
	domain.TaskAddObject:    true,
	domain.TaskDeleteObject: true,
}

func (s *TaskService) Create(ctx context.Context, task *domain.Task) error {
	if !queueableTypes[task.Type] {
		return fmt.Errorf("%w: task type %q cannot be queued", domain.ErrInvalidInput, task.Type)
	}
	switch task.Type {
	case domain.TaskSetParams:
		if len(task.Params.Values) == 0 {
			return fmt.Errorf("%w: set_params requires values", domain.ErrInvalidInput)
		}
	case domain.TaskDownload:
		if task.Params.Download == nil || task.Params.Download.URL == "" {
			return fmt.Errorf("%w: download requires a URL", domain.ErrInvalidInput)
		}
	case domain.TaskUpload:
		if task.Params.Upload == nil || task.Params.Upload.URL == "" {
			return fmt.Errorf("%w: upload requires a URL", domain.ErrInvalidInput)
		}
	case domain.TaskAddObject, domain.TaskDeleteObject:
		if task.Params.ObjectName == "" {
			return fmt.Errorf("%w: object tasks require an object name", domain.ErrInvalidInput)
		}
	}

	if _, err := s.devices.GetByID(ctx, task.DeviceID); err != nil {
		return err
	}

	task.Status = domain.TaskStatusPending
	if err := s.tasks.Create(ctx, task); err != nil {
		return err
	}
	s.log.Info("task queued", "task_id", task.ID, "device_id", task.DeviceID, "type", task.Type)
	return nil
}

func (s *TaskService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return s.tasks.GetByID(ctx, id)
}

func (s *TaskService) List(ctx context.Context, filter domain.TaskFilter) ([]*domain.Task, int, error) {
	return s.tasks.List(ctx, filter)
}

func (s *TaskService) Cancel(ctx context.Context, id uuid.UUID) error {
	return s.tasks.Cancel(ctx, id)
}
