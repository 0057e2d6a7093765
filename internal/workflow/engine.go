package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/crestwave/acs/internal/datamodel"
	"github.com/crestwave/acs/internal/domain"
)

// ConnectionRequester asks a device to open a new session with the server.
type ConnectionRequester interface {
	Request(ctx context.Context, d *domain.Device) error
}

// WiFiExtractor pulls WiFi settings off a device out of band, for units
// whose remote management tree no longer exposes them.
type WiFiExtractor interface {
	ExtractWiFi(ctx context.Context, d *domain.Device) (map[string]domain.ParamValue, error)
}

// Engine drives group workflows: it decides which steps apply to a device,
// creates at most one execution per (workflow, device) pair, and advances
// dependency chains as tasks finish.
type Engine struct {
	matcher    *Matcher
	builder    *Builder
	workflows  domain.WorkflowRepository
	executions domain.ExecutionRepository
	tasks      domain.TaskRepository
	params     domain.ParameterRepository
	backups    domain.BackupRepository
	requester  ConnectionRequester
	extractor  WiFiExtractor
	log        *slog.Logger
}

func NewEngine(
	matcher *Matcher,
	builder *Builder,
	workflows domain.WorkflowRepository,
	executions domain.ExecutionRepository,
	tasks domain.TaskRepository,
	params domain.ParameterRepository,
	backups domain.BackupRepository,
	requester ConnectionRequester,
	extractor WiFiExtractor,
	log *slog.Logger,
) *Engine {
	return &Engine{
		matcher:    matcher,
		builder:    builder,
		workflows:  workflows,
		executions: executions,
		tasks:      tasks,
		params:     params,
		backups:    backups,
		requester:  requester,
		extractor:  extractor,
		log:        log,
	}
}

// ExecuteForDevice evaluates every on-connect workflow the device's groups
// carry. Safe to call on every inform: the unique (workflow, device)
// execution row makes repeat evaluation a no-op.
func (e *Engine) ExecuteForDevice(ctx context.Context, d *domain.Device) error {
	groups, err := e.matcher.GroupsFor(ctx, d)
	if err != nil {
		return err
	}
	for _, g := range groups {
		wfs, err := e.workflows.ListActiveByGroup(ctx, g.ID)
		if err != nil {
			return err
		}
		for _, wf := range wfs {
			if wf.Schedule == domain.ScheduleManual {
				continue
			}
			if err := e.runWorkflow(ctx, wf, d); err != nil {
				e.log.Error("workflow step failed", "workflow", wf.Name, "device", d.DeviceKey, "error", err)
			}
		}
	}
	return nil
}

// Trigger starts one workflow for every current member of its group,
// regardless of schedule. Used for manual kicks and by the periodic
// scheduler.
func (e *Engine) Trigger(ctx context.Context, workflowID uuid.UUID) (int, error) {
	wf, err := e.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return 0, err
	}
	if wf.Status != domain.WorkflowActive {
		return 0, domain.ErrWorkflowPaused
	}
	group, err := e.matcher.groups.GetByID(ctx, wf.GroupID)
	if err != nil {
		return 0, err
	}
	devices, _, err := e.matcher.devices.List(ctx, domain.DeviceFilter{})
	if err != nil {
		return 0, err
	}
	started := 0
	for _, d := range devices {
		if !Matches(d, group) {
			continue
		}
		if err := e.runWorkflow(ctx, wf, d); err != nil {
			e.log.Error("workflow trigger failed", "workflow", wf.Name, "device", d.DeviceKey, "error", err)
			continue
		}
		started++
	}
	return started, nil
}

func (e *Engine) runWorkflow(ctx context.Context, wf *domain.GroupWorkflow, d *domain.Device) error {
	if _, err := e.executions.GetByWorkflowAndDevice(ctx, wf.ID, d.ID); err == nil {
		// Already ran, running, or skipped for this device.
		return nil
	}

	if wf.DependsOnWorkflowID != nil {
		dep, err := e.executions.GetByWorkflowAndDevice(ctx, *wf.DependsOnWorkflowID, d.ID)
		if err != nil {
			// Dependency has not started for this device; try again at the
			// next inform.
			return nil
		}
		switch dep.Status {
		case domain.ExecutionCompleted:
			// Proceed.
		case domain.ExecutionFailed, domain.ExecutionSkipped, domain.ExecutionCancelled:
			return e.createExecution(ctx, wf, d, domain.ExecutionSkipped,
				fmt.Sprintf("dependency workflow %s ended %s", dep.WorkflowID, dep.Status), nil)
		default:
			return nil
		}
	}

	if Synchronous(wf.TaskType) {
		return e.runSynchronous(ctx, wf, d)
	}

	task, err := e.builder.Build(ctx, wf, d)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Nothing applicable, e.g. the device already runs the target
			// firmware.
			return e.createExecution(ctx, wf, d, domain.ExecutionSkipped, err.Error(), nil)
		}
		return err
	}
	if err := e.tasks.Create(ctx, task); err != nil {
		return err
	}
	if err := e.createExecution(ctx, wf, d, domain.ExecutionQueued, "", &task.ID); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Another session won the race; drop our duplicate task.
			return e.tasks.Cancel(ctx, task.ID)
		}
		return err
	}
	e.log.Info("workflow task queued", "workflow", wf.Name, "device", d.DeviceKey, "task", task.ID)
	return nil
}

func (e *Engine) createExecution(ctx context.Context, wf *domain.GroupWorkflow, d *domain.Device, status domain.ExecutionStatus, result string, taskID *uuid.UUID) error {
	ex := &domain.WorkflowExecution{
		WorkflowID: wf.ID,
		DeviceID:   d.ID,
		Status:     status,
		TaskID:     taskID,
		Result:     result,
	}
	return e.executions.Create(ctx, ex)
}

// runSynchronous executes in-engine step types. A Task row is still created
// and finished in the same call, so these steps show up in the device's task
// history like any round-trip RPC.
func (e *Engine) runSynchronous(ctx context.Context, wf *domain.GroupWorkflow, d *domain.Device) error {
	var result string
	var taskType domain.TaskType
	status := domain.ExecutionCompleted
	taskStatus := domain.TaskStatusCompleted

	var err error
	switch wf.TaskType {
	case domain.WFTransitionBackup:
		taskType = domain.TaskTransitionBackup
		result, err = e.transitionBackup(ctx, wf, d)
	case domain.WFExtractWiFiSSH:
		taskType = domain.TaskExtractWiFiSSH
		result, err = e.extractWiFi(ctx, d)
	default:
		return fmt.Errorf("task type %q is not synchronous", wf.TaskType)
	}
	if err != nil {
		status = domain.ExecutionFailed
		taskStatus = domain.TaskStatusFailed
		result = err.Error()
	}

	task := &domain.Task{DeviceID: d.ID, Type: taskType, Status: domain.TaskStatusSent, Params: wf.Params}
	if terr := e.tasks.Create(ctx, task); terr != nil {
		return terr
	}
	if terr := e.tasks.Finish(ctx, task.ID, taskStatus, result); terr != nil {
		return terr
	}

	if cerr := e.createExecution(ctx, wf, d, status, result, &task.ID); cerr != nil {
		if errors.Is(cerr, domain.ErrConflict) {
			return nil
		}
		return cerr
	}
	if err != nil {
		e.log.Error("synchronous workflow step failed", "workflow", wf.Name, "device", d.DeviceKey, "error", err)
		return nil
	}
	return e.afterCompletion(ctx, wf, d)
}

// transitionBackup snapshots the device's cached parameters as a named
// backup without querying the device, for fleets about to leave this
// server's management.
func (e *Engine) transitionBackup(ctx context.Context, wf *domain.GroupWorkflow, d *domain.Device) (string, error) {
	var rows []*domain.Parameter
	var err error
	if wf.Params.UseCachedData && len(wf.Params.Names) == 0 {
		rows, err = e.params.GetByPrefix(ctx, d.ID, datamodel.WiFiParamPrefixes)
	} else {
		rows, err = e.params.GetAll(ctx, d.ID)
	}
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("no cached parameters for %s", d.DeviceKey)
	}

	snapshot := make(map[string]domain.ParamValue, len(rows))
	for _, row := range rows {
		snapshot[row.Name] = domain.ParamValue{Value: row.Value, Type: row.Type}
	}
	name := wf.Params.BackupName
	if name == "" {
		name = fmt.Sprintf("transition %s", time.Now().Format("2006-01-02"))
	}
	backup := &domain.ConfigBackup{
		DeviceID:   d.ID,
		Name:       name,
		Purpose:    domain.BackupPurposeCortecaTransition,
		Parameters: snapshot,
	}
	if err := e.backups.Create(ctx, backup); err != nil {
		return "", err
	}
	return fmt.Sprintf("backed up %d parameters", len(snapshot)), nil
}

// extractWiFi pulls WiFi settings over the out-of-band channel and folds
// them into the parameter cache.
func (e *Engine) extractWiFi(ctx context.Context, d *domain.Device) (string, error) {
	if e.extractor == nil {
		return "", errors.New("no wifi extractor configured")
	}
	values, err := e.extractor.ExtractWiFi(ctx, d)
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		return "", errors.New("extractor returned no wifi parameters")
	}
	if err := e.params.Upsert(ctx, d.ID, values); err != nil {
		return "", err
	}
	return fmt.Sprintf("extracted %d wifi parameters", len(values)), nil
}

// OnTaskSent moves the owning execution to in_progress once the task's RPC
// is on the wire. Tasks not owned by a workflow are ignored.
func (e *Engine) OnTaskSent(ctx context.Context, taskID uuid.UUID) error {
	ex, err := e.executions.GetByTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if ex.Status != domain.ExecutionQueued {
		return nil
	}
	return e.executions.UpdateStatus(ctx, ex.ID, domain.ExecutionInProgress, ex.Result)
}

// OnTaskFinished advances the execution owning a finished task. Cancelled
// executions are terminal and receive no callback effects.
func (e *Engine) OnTaskFinished(ctx context.Context, task *domain.Task, succeeded bool, result string) error {
	ex, err := e.executions.GetByTask(ctx, task.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Not a workflow task.
			return nil
		}
		return err
	}
	if ex.Status == domain.ExecutionCancelled {
		return nil
	}

	wf, err := e.workflows.GetByID(ctx, ex.WorkflowID)
	if err != nil {
		return err
	}

	if !succeeded {
		if err := e.executions.UpdateStatus(ctx, ex.ID, domain.ExecutionFailed, result); err != nil {
			return err
		}
		return e.checkFailureThreshold(ctx, wf)
	}

	if err := e.executions.UpdateStatus(ctx, ex.ID, domain.ExecutionCompleted, result); err != nil {
		return err
	}

	device, err := e.matcher.devices.GetByID(ctx, ex.DeviceID)
	if err != nil {
		return err
	}
	return e.afterCompletion(ctx, wf, device)
}

// afterCompletion marks the workflow completed once every execution is
// terminal, and nudges the device once when a dependent workflow is waiting
// on this step.
func (e *Engine) afterCompletion(ctx context.Context, wf *domain.GroupWorkflow, d *domain.Device) error {
	counts, err := e.executions.CountByStatus(ctx, wf.ID)
	if err != nil {
		return err
	}
	open := counts[domain.ExecutionPending] + counts[domain.ExecutionQueued] + counts[domain.ExecutionInProgress]
	if open == 0 && wf.Status == domain.WorkflowActive && wf.Schedule != domain.SchedulePeriodic {
		if err := e.workflows.UpdateStatus(ctx, wf.ID, domain.WorkflowCompleted); err != nil {
			return err
		}
		e.log.Info("workflow completed", "workflow", wf.Name)
	}

	dependents, err := e.workflows.ListDependents(ctx, wf.ID)
	if err != nil {
		return err
	}
	if e.requester == nil {
		return nil
	}
	for _, dep := range dependents {
		if dep.Schedule == domain.ScheduleManual {
			continue
		}
		if _, err := e.executions.GetByWorkflowAndDevice(ctx, dep.ID, d.ID); err == nil {
			// The dependent already ran, is running, or was skipped for
			// this device; nothing a new session would start.
			continue
		}
		// One nudge regardless of how many dependents are waiting; they
		// all evaluate in the session it opens.
		if err := e.requester.Request(ctx, d); err != nil {
			e.log.Warn("connection request after workflow step failed",
				"device", d.DeviceKey, "error", err)
		}
		break
	}
	return nil
}

// checkFailureThreshold pauses a workflow whose failure ratio crossed its
// configured circuit breaker.
func (e *Engine) checkFailureThreshold(ctx context.Context, wf *domain.GroupWorkflow) error {
	if wf.StopOnFailurePercent <= 0 {
		return nil
	}
	counts, err := e.executions.CountByStatus(ctx, wf.ID)
	if err != nil {
		return err
	}
	// The ratio is over finished executions only; queued and in-flight
	// devices never enter the denominator.
	failed := counts[domain.ExecutionFailed]
	finished := failed + counts[domain.ExecutionCompleted]
	if finished == 0 {
		return nil
	}
	if failed*100 >= wf.StopOnFailurePercent*finished {
		if err := e.workflows.UpdateStatus(ctx, wf.ID, domain.WorkflowPaused); err != nil {
			return err
		}
		e.log.Warn("workflow paused on failure threshold",
			"workflow", wf.Name, "failed", failed, "finished", finished, "threshold_percent", wf.StopOnFailurePercent)
	}
	return nil
}
