package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// WorkflowTaskType is the abstract step type a GroupWorkflow declares. The
// engine maps it to a concrete TaskType; the set is closed, not a plugin
// system.
type WorkflowTaskType string

const (
	WFFirmwareUpgrade  WorkflowTaskType = "firmware_upgrade"
	WFSetParams        WorkflowTaskType = "set_parameter_values"
	WFGetParams        WorkflowTaskType = "get_parameter_values"
	WFDownload         WorkflowTaskType = "download"
	WFUpload           WorkflowTaskType = "upload"
	WFBackup           WorkflowTaskType = "backup"
	WFRestore          WorkflowTaskType = "restore"
	WFReboot           WorkflowTaskType = "reboot"
	WFTransitionBackup WorkflowTaskType = "transition_backup"
	WFExtractWiFiSSH   WorkflowTaskType = "extract_wifi_ssh"
	WFMigrationFlag    WorkflowTaskType = "migration_flag"
	WFMigrationPreconf WorkflowTaskType = "migration_preconfig"
)

type WorkflowStatus string

const (
	WorkflowActive    WorkflowStatus = "active"
	WorkflowPaused    WorkflowStatus = "paused"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowDisabled  WorkflowStatus = "disabled"
)

type WorkflowSchedule string

const (
	ScheduleOnConnect WorkflowSchedule = "on_connect"
	ScheduleManual    WorkflowSchedule = "manual"
	SchedulePeriodic  WorkflowSchedule = "periodic"
)

// GroupWorkflow defines one step applied to every device of a group. A
// depends_on chain forms a DAG of sequential migration steps; each workflow
// runs at most once per device.
type GroupWorkflow struct {
	ID                   uuid.UUID        `json:"id"`
	GroupID              uuid.UUID        `json:"group_id"`
	Name                 string           `json:"name"`
	TaskType             WorkflowTaskType `json:"task_type"`
	Schedule             WorkflowSchedule `json:"schedule"`
	DependsOnWorkflowID  *uuid.UUID       `json:"depends_on_workflow_id,omitempty"`
	StopOnFailurePercent int              `json:"stop_on_failure_percent"`
	Params               TaskParams       `json:"params"`
	FirmwareID           *uuid.UUID       `json:"firmware_id,omitempty"`
	Status               WorkflowStatus   `json:"status"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

type ExecutionStatus string

const (
	ExecutionPending    ExecutionStatus = "pending"
	ExecutionQueued     ExecutionStatus = "queued"
	ExecutionInProgress ExecutionStatus = "in_progress"
	ExecutionCompleted  ExecutionStatus = "completed"
	ExecutionFailed     ExecutionStatus = "failed"
	ExecutionSkipped    ExecutionStatus = "skipped"
	ExecutionCancelled  ExecutionStatus = "cancelled"
)

// WorkflowExecution is the (workflow, device) state machine instance.
// Exactly one row exists per pair unless explicitly reset.
type WorkflowExecution struct {
	ID         uuid.UUID       `json:"id"`
	WorkflowID uuid.UUID       `json:"workflow_id"`
	DeviceID   uuid.UUID       `json:"device_id"`
	Status     ExecutionStatus `json:"status"`
	TaskID     *uuid.UUID      `json:"task_id,omitempty"`
	Result     string          `json:"result,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type WorkflowRepository interface {
	Create(ctx context.Context, wf *GroupWorkflow) error
	GetByID(ctx context.Context, id uuid.UUID) (*GroupWorkflow, error)
	List(ctx context.Context) ([]*GroupWorkflow, error)
	ListActiveByGroup(ctx context.Context, groupID uuid.UUID) ([]*GroupWorkflow, error)
	// ListDependents returns active workflows whose depends_on points at id.
	ListDependents(ctx context.Context, id uuid.UUID) ([]*GroupWorkflow, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status WorkflowStatus) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type ExecutionRepository interface {
	// Create returns ErrConflict when an execution for the same
	// (workflow, device) pair already exists.
	Create(ctx context.Context, ex *WorkflowExecution) error
	GetByID(ctx context.Context, id uuid.UUID) (*WorkflowExecution, error)
	GetByWorkflowAndDevice(ctx context.Context, workflowID, deviceID uuid.UUID) (*WorkflowExecution, error)
	GetByTask(ctx context.Context, taskID uuid.UUID) (*WorkflowExecution, error)
	ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]*WorkflowExecution, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status ExecutionStatus, result string) error
	SetTask(ctx context.Context, id uuid.UUID, taskID uuid.UUID) error
	CountByStatus(ctx context.Context, workflowID uuid.UUID) (map[ExecutionStatus]int, error)
}
