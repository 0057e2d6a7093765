package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TaskType string

const (
	TaskGetParams    TaskType = "get_params"
	TaskSetParams    TaskType = "set_params"
	TaskGetNames     TaskType = "get_names"
	TaskReboot       TaskType = "reboot"
	TaskFactoryReset TaskType = "factory_reset"
	TaskDownload     TaskType = "download"
	TaskUpload       TaskType = "upload"
	TaskDiagnostics  TaskType = "diagnostics"
	TaskAddObject    TaskType = "add_object"
	TaskDeleteObject TaskType = "delete_object"

	// Migration-specific task types (TR-098 to TR-181).
	TaskTransitionBackup TaskType = "transition_backup"
	TaskMigrationFlag    TaskType = "migration_flag"
	TaskMigrationPreconf TaskType = "migration_preconfig"
	TaskExtractWiFiSSH   TaskType = "extract_wifi_ssh"
)

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusSent      TaskStatus = "sent"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// ParamValue is a single TR-069 parameter value with its xsd type.
type ParamValue struct {
	Value string `json:"value"`
	Type  string `json:"type,omitempty"`
}

// DownloadParams carries the payload of a Download RPC. The command key is
// filled in by the session layer so a later TransferComplete, possibly in a
// whole new session, can be correlated back to the task.
type DownloadParams struct {
	FileType       string `json:"file_type"`
	URL            string `json:"url"`
	Username       string `json:"username,omitempty"`
	Password       string `json:"password,omitempty"`
	FileSize       int64  `json:"file_size,omitempty"`
	TargetFileName string `json:"target_file_name,omitempty"`
	DelaySeconds   int    `json:"delay_seconds,omitempty"`
}

type UploadParams struct {
	FileType string `json:"file_type"`
	URL      string `json:"url"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// TaskParams is a tagged payload: each task type reads the fields it owns,
// and Raw is reserved for genuinely open-ended vendor parameter sets.
type TaskParams struct {
	Names         []string              `json:"names,omitempty"`
	Values        map[string]ParamValue `json:"values,omitempty"`
	Download      *DownloadParams       `json:"download,omitempty"`
	Upload        *UploadParams         `json:"upload,omitempty"`
	ObjectName    string                `json:"object_name,omitempty"`
	BackupName    string                `json:"backup_name,omitempty"`
	BackupPurpose string                `json:"backup_purpose,omitempty"`
	UseCachedData bool                  `json:"use_cached_data,omitempty"`
	MigrationStep int                   `json:"migration_step,omitempty"`
	Raw           map[string]string     `json:"raw,omitempty"`
}

type Task struct {
	ID         uuid.UUID  `json:"id"`
	DeviceID   uuid.UUID  `json:"device_id"`
	Type       TaskType   `json:"type"`
	Status     TaskStatus `json:"status"`
	Params     TaskParams `json:"params"`
	CommandKey string     `json:"command_key,omitempty"`
	Result     string     `json:"result,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type TaskFilter struct {
	DeviceID *uuid.UUID
	Status   *TaskStatus
	Type     *TaskType
	Page     int
	PerPage  int
}

type TaskRepository interface {
	Create(ctx context.Context, task *Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*Task, error)
	GetByCommandKey(ctx context.Context, commandKey string) (*Task, error)
	// NextPending returns the oldest pending task for the device, or
	// ErrNotFound. The session layer serializes RPCs per device by marking
	// the returned task sent before encoding it.
	NextPending(ctx context.Context, deviceID uuid.UUID) (*Task, error)
	List(ctx context.Context, filter TaskFilter) ([]*Task, int, error)
	CountPending(ctx context.Context, deviceID uuid.UUID) (int, error)
	MarkSent(ctx context.Context, id uuid.UUID, commandKey string) error
	Finish(ctx context.Context, id uuid.UUID, status TaskStatus, result string) error
	Cancel(ctx context.Context, id uuid.UUID) error
}
