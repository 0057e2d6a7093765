package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/crestwave/acs/internal/cwmp"
	"github.com/crestwave/acs/internal/datamodel"
	"github.com/crestwave/acs/internal/domain"
	"github.com/crestwave/acs/internal/migration"
)

// WorkflowRunner is the workflow engine surface the session layer needs.
type WorkflowRunner interface {
	ExecuteForDevice(ctx context.Context, d *domain.Device) error
	OnTaskSent(ctx context.Context, taskID uuid.UUID) error
	OnTaskFinished(ctx context.Context, task *domain.Task, succeeded bool, result string) error
}

// IdentityReconciler merges a re-keyed device record with its predecessor.
type IdentityReconciler interface {
	Reconcile(ctx context.Context, successor *domain.Device) (*domain.MergeResult, error)
}

// MigrationVerifier checks a migration-pending device after it reconnects.
type MigrationVerifier interface {
	Verify(ctx context.Context, device *domain.Device) (*migration.VerifyResult, error)
}

// AcsService drives the CWMP conversation: it decodes device messages,
// maintains protocol state across HTTP round-trips, applies responses to the
// task queue, and encodes the next ACS request.
type AcsService struct {
	devices  domain.DeviceRepository
	params   domain.ParameterRepository
	tasks    domain.TaskRepository
	backups  domain.BackupRepository
	sessions domain.SessionStore
	rules    []cwmp.NamespaceRule

	workflows  WorkflowRunner
	reconciler IdentityReconciler
	verifier   MigrationVerifier

	log *slog.Logger
}

func NewAcsService(
	devices domain.DeviceRepository,
	params domain.ParameterRepository,
	tasks domain.TaskRepository,
	backups domain.BackupRepository,
	sessions domain.SessionStore,
	rules []cwmp.NamespaceRule,
	workflows WorkflowRunner,
	reconciler IdentityReconciler,
	verifier MigrationVerifier,
	log *slog.Logger,
) *AcsService {
	return &AcsService{
		devices:    devices,
		params:     params,
		tasks:      tasks,
		backups:    backups,
		sessions:   sessions,
		rules:      rules,
		workflows:  workflows,
		reconciler: reconciler,
		verifier:   verifier,
		log:        log,
	}
}

// CPEResult is what the HTTP layer writes back to the device. An empty Body
// with EndOfSession set means 204 No Content.
type CPEResult struct {
	Body         string
	DeviceKey    string
	EndOfSession bool
}

// HandleCPE processes one device POST. deviceKey comes from the session
// cookie and is empty on the first message of a conversation.
func (s *AcsService) HandleCPE(ctx context.Context, deviceKey string, body []byte, remoteIP string) (*CPEResult, error) {
	if len(body) > 0 {
		sess := cwmp.NewSession(s.rules)
		if inf, err := sess.ParseInform(body); err == nil {
			return s.handleInform(ctx, sess, inf, remoteIP)
		}
	}
	return s.handleContinuation(ctx, deviceKey, body)
}

func (s *AcsService) handleInform(ctx context.Context, sess *cwmp.Session, inf *cwmp.Inform, remoteIP string) (*CPEResult, error) {
	key := inf.DeviceKey()
	now := time.Now().UTC()

	device, err := s.devices.GetByKey(ctx, key)
	created := false
	switch {
	case errors.Is(err, domain.ErrNotFound):
		device = &domain.Device{
			DeviceKey:    key,
			Manufacturer: inf.Manufacturer,
			OUI:          inf.OUI,
			ProductClass: inf.ProductClass,
			SerialNumber: inf.SerialNumber,
			IPAddress:    remoteIP,
			Online:       true,
			Tags:         []string{},
		}
		applyInformParameters(device, inf.Parameters)
		if err := s.devices.Create(ctx, device); err != nil {
			if !errors.Is(err, domain.ErrConflict) {
				return nil, fmt.Errorf("create device: %w", err)
			}
			// Concurrent first inform won the insert.
			device, err = s.devices.GetByKey(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("re-lookup device: %w", err)
			}
		} else {
			created = true
			s.log.Info("new device registered",
				"device_key", key, "manufacturer", inf.Manufacturer, "product_class", inf.ProductClass)
		}

	case err != nil:
		return nil, fmt.Errorf("lookup device: %w", err)

	default:
		if inf.Manufacturer != "" {
			device.Manufacturer = inf.Manufacturer
		}
		device.IPAddress = remoteIP
		applyInformParameters(device, inf.Parameters)
		if err := s.devices.Update(ctx, device); err != nil {
			return nil, fmt.Errorf("update device: %w", err)
		}
	}

	if err := s.devices.SetLastInform(ctx, device.ID, now); err != nil {
		s.log.Warn("set last inform", "device_key", key, "err", err)
	}
	device.Online = true
	device.LastInform = &now

	if len(inf.Parameters) > 0 {
		if err := s.params.Upsert(ctx, device.ID, inf.Parameters); err != nil {
			s.log.Warn("cache inform parameters", "device_key", key, "err", err)
		}
	}

	if created || inf.HasEvent("0 BOOTSTRAP") {
		s.reconcileIdentity(ctx, device)
	}

	if device.HasTag(migration.TagMigrationPending) &&
		datamodel.InferFromNames(inf.Parameters) == domain.DataModelTR181 {
		s.verifyMigration(ctx, device)
	}

	if s.workflows != nil {
		if err := s.workflows.ExecuteForDevice(ctx, device); err != nil {
			s.log.Warn("workflow evaluation", "device_key", key, "err", err)
		}
	}

	// An Inform always opens a fresh conversation, replacing any stale state.
	sess.AttachDevice(device)
	respBody := sess.CreateInformResponse()
	s.saveState(ctx, sess, key, "")

	return &CPEResult{Body: respBody, DeviceKey: key}, nil
}

func (s *AcsService) reconcileIdentity(ctx context.Context, device *domain.Device) {
	if s.reconciler == nil {
		return
	}
	res, err := s.reconciler.Reconcile(ctx, device)
	if err != nil {
		s.log.Warn("identity reconciliation", "device_key", device.DeviceKey, "err", err)
		return
	}
	if res.Merged {
		s.log.Info("merged predecessor record",
			"device_key", device.DeviceKey,
			"predecessor_id", res.PredecessorID,
			"backups_transferred", res.BackupsTransferred)
		if fresh, err := s.devices.GetByID(ctx, device.ID); err == nil {
			*device = *fresh
		}
	}
}

func (s *AcsService) verifyMigration(ctx context.Context, device *domain.Device) {
	if s.verifier == nil {
		return
	}
	res, err := s.verifier.Verify(ctx, device)
	if err != nil {
		s.log.Warn("migration verification", "device_key", device.DeviceKey, "err", err)
		return
	}
	s.log.Info("migration verified",
		"device_key", device.DeviceKey, "outcome", res.Outcome, "data_model", res.DataModel)
	if fresh, err := s.devices.GetByID(ctx, device.ID); err == nil {
		*device = *fresh
	}
}

func (s *AcsService) handleContinuation(ctx context.Context, deviceKey string, body []byte) (*CPEResult, error) {
	if deviceKey == "" {
		return nil, fmt.Errorf("%w: message without a session", domain.ErrSessionExpired)
	}
	state, err := s.sessions.Get(ctx, deviceKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionExpired, deviceKey)
	}
	device, err := s.devices.GetByKey(ctx, deviceKey)
	if err != nil {
		return nil, fmt.Errorf("lookup device: %w", err)
	}

	sess := cwmp.NewSession(s.rules)
	sess.Restore(state)
	sess.AttachDevice(device)

	resp, err := sess.ParseResponse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	switch resp.Kind {
	case cwmp.KindEmpty:
		return s.nextRPC(ctx, sess, device, state.TaskID)

	case cwmp.KindGetRPCMethods:
		out := sess.CreateGetRPCMethodsResponse()
		s.saveState(ctx, sess, deviceKey, state.TaskID)
		return &CPEResult{Body: out, DeviceKey: deviceKey}, nil

	case cwmp.KindTransferComplete:
		s.completeTransfer(ctx, resp.Transfer)
		out := sess.CreateTransferCompleteResponse()
		s.saveState(ctx, sess, deviceKey, state.TaskID)
		return &CPEResult{Body: out, DeviceKey: deviceKey}, nil

	case cwmp.KindFault:
		result := "fault"
		if resp.Fault != nil {
			result = fmt.Sprintf("fault %s: %s", resp.Fault.Code, resp.Fault.String)
		}
		s.finishInFlight(ctx, state.TaskID, domain.TaskStatusFailed, result)
		return s.nextRPC(ctx, sess, device, "")

	default:
		s.applyTaskResponse(ctx, state.TaskID, device, resp)
		return s.nextRPC(ctx, sess, device, "")
	}
}

// applyTaskResponse folds a device's RPC response into storage and completes
// the in-flight task.
func (s *AcsService) applyTaskResponse(ctx context.Context, taskID string, device *domain.Device, resp *cwmp.Response) {
	task := s.inFlightTask(ctx, taskID)

	switch resp.Kind {
	case cwmp.KindGetParameterValuesResponse:
		if len(resp.Parameters) > 0 {
			if err := s.params.Upsert(ctx, device.ID, resp.Parameters); err != nil {
				s.log.Warn("cache parameters", "device_key", device.DeviceKey, "err", err)
			}
		}
		if task != nil && (task.Params.BackupName != "" || task.Params.BackupPurpose != "") {
			s.snapshotBackup(ctx, device, task, resp.Parameters)
		}
		s.finishTask(ctx, task, domain.TaskStatusCompleted, fmt.Sprintf("%d parameters", len(resp.Parameters)))

	case cwmp.KindSetParameterValuesResponse:
		s.finishTask(ctx, task, domain.TaskStatusCompleted, fmt.Sprintf("status %d", resp.Status))

	case cwmp.KindGetParameterNamesResponse:
		if len(resp.Names) > 0 {
			if err := s.params.SetWritable(ctx, device.ID, resp.Names); err != nil {
				s.log.Warn("record writability", "device_key", device.DeviceKey, "err", err)
			}
		}
		s.finishTask(ctx, task, domain.TaskStatusCompleted, fmt.Sprintf("%d names", len(resp.Names)))

	case cwmp.KindAddObjectResponse:
		s.finishTask(ctx, task, domain.TaskStatusCompleted, fmt.Sprintf("instance %d", resp.InstanceNumber))

	case cwmp.KindDeleteObjectResponse:
		s.finishTask(ctx, task, domain.TaskStatusCompleted, fmt.Sprintf("status %d", resp.Status))
	}
}

func (s *AcsService) snapshotBackup(ctx context.Context, device *domain.Device, task *domain.Task, params map[string]domain.ParamValue) {
	name := task.Params.BackupName
	if name == "" {
		name = fmt.Sprintf("backup-%s", time.Now().UTC().Format("20060102-150405"))
	}
	purpose := task.Params.BackupPurpose
	if purpose == "" {
		purpose = domain.BackupPurposeManual
	}
	backup := &domain.ConfigBackup{
		DeviceID:   device.ID,
		Name:       name,
		Purpose:    purpose,
		Parameters: params,
	}
	if err := s.backups.Create(ctx, backup); err != nil {
		s.log.Warn("create backup", "device_key", device.DeviceKey, "name", name, "err", err)
		return
	}
	s.log.Info("configuration backup created",
		"device_key", device.DeviceKey, "name", name, "purpose", purpose, "parameters", len(params))
}

func (s *AcsService) inFlightTask(ctx context.Context, taskID string) *domain.Task {
	if taskID == "" {
		return nil
	}
	id, err := uuid.Parse(taskID)
	if err != nil {
		return nil
	}
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		s.log.Warn("in-flight task lookup", "task_id", taskID, "err", err)
		return nil
	}
	return task
}

func (s *AcsService) finishInFlight(ctx context.Context, taskID string, status domain.TaskStatus, result string) {
	s.finishTask(ctx, s.inFlightTask(ctx, taskID), status, result)
}

func (s *AcsService) finishTask(ctx context.Context, task *domain.Task, status domain.TaskStatus, result string) {
	if task == nil {
		return
	}
	if err := s.tasks.Finish(ctx, task.ID, status, result); err != nil {
		if errors.Is(err, domain.ErrTaskTerminal) {
			return
		}
		s.log.Warn("finish task", "task_id", task.ID, "err", err)
		return
	}
	s.log.Info("task finished", "task_id", task.ID, "type", task.Type, "status", status)
	if s.workflows != nil {
		if err := s.workflows.OnTaskFinished(ctx, task, status == domain.TaskStatusCompleted, result); err != nil {
			s.log.Warn("workflow callback", "task_id", task.ID, "err", err)
		}
	}
}

// completeTransfer correlates a TransferComplete back to the Download or
// Upload task that started it, which may have been sent sessions ago.
func (s *AcsService) completeTransfer(ctx context.Context, tc *cwmp.TransferComplete) {
	if tc == nil {
		return
	}
	var task *domain.Task
	if id, ok := cwmp.DecodeCommandKey(tc.CommandKey); ok {
		if t, err := s.tasks.GetByID(ctx, id); err == nil {
			task = t
		}
	}
	if task == nil {
		t, err := s.tasks.GetByCommandKey(ctx, tc.CommandKey)
		if err != nil {
			s.log.Info("transfer complete for unknown command key", "command_key", tc.CommandKey)
			return
		}
		task = t
	}

	status := domain.TaskStatusCompleted
	result := "transfer complete"
	if tc.Fault != nil {
		status = domain.TaskStatusFailed
		result = fmt.Sprintf("transfer fault %s: %s", tc.Fault.Code, tc.Fault.String)
	}
	s.finishTask(ctx, task, status, result)
}

// nextRPC sends the oldest pending task or ends the conversation. A task the
// codec cannot encode is failed and the next one is tried, bounded so a run
// of broken tasks cannot spin forever.
func (s *AcsService) nextRPC(ctx context.Context, sess *cwmp.Session, device *domain.Device, inFlight string) (*CPEResult, error) {
	if inFlight != "" {
		// The device went silent on an outstanding request; treat it as failed.
		s.finishInFlight(ctx, inFlight, domain.TaskStatusFailed, "no response from device")
	}

	for attempt := 0; attempt < 5; attempt++ {
		task, err := s.tasks.NextPending(ctx, device.ID)
		if errors.Is(err, domain.ErrNotFound) {
			if err := s.sessions.Delete(ctx, device.DeviceKey); err != nil {
				s.log.Warn("end session", "device_key", device.DeviceKey, "err", err)
			}
			return &CPEResult{DeviceKey: device.DeviceKey, EndOfSession: true}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("next pending task: %w", err)
		}

		body, commandKey, err := s.encodeTask(ctx, sess, device, task)
		if err != nil {
			s.log.Warn("unencodable task", "task_id", task.ID, "type", task.Type, "err", err)
			s.finishTask(ctx, task, domain.TaskStatusFailed, err.Error())
			continue
		}
		if err := s.tasks.MarkSent(ctx, task.ID, commandKey); err != nil {
			return nil, fmt.Errorf("mark task sent: %w", err)
		}
		if err := s.workflows.OnTaskSent(ctx, task.ID); err != nil {
			s.log.Warn("workflow sent-notification failed", "task_id", task.ID, "err", err)
		}
		s.saveState(ctx, sess, device.DeviceKey, task.ID.String())
		s.log.Info("rpc sent", "device_key", device.DeviceKey, "task_id", task.ID, "type", task.Type)
		return &CPEResult{Body: body, DeviceKey: device.DeviceKey}, nil
	}

	return nil, fmt.Errorf("too many unencodable tasks for %s", device.DeviceKey)
}

func (s *AcsService) encodeTask(ctx context.Context, sess *cwmp.Session, device *domain.Device, task *domain.Task) (body, commandKey string, err error) {
	switch task.Type {
	case domain.TaskGetParams:
		names := task.Params.Names
		if len(names) == 0 {
			names = []string{s.rootPathFor(ctx, device)}
		}
		return sess.CreateGetParameterValues("", names), "", nil

	case domain.TaskSetParams:
		if len(task.Params.Values) == 0 {
			return "", "", fmt.Errorf("set_params task has no values")
		}
		return sess.CreateSetParameterValues("", task.Params.Values), "", nil

	case domain.TaskGetNames:
		path := s.rootPathFor(ctx, device)
		if len(task.Params.Names) > 0 {
			path = task.Params.Names[0]
		}
		nextLevel := cwmp.NormalizeBool(task.Params.Raw["next_level"]) == "1"
		return sess.CreateGetParameterNames("", path, nextLevel), "", nil

	case domain.TaskReboot:
		ck := cwmp.EncodeCommandKey(task.ID, time.Now())
		return sess.CreateReboot("", ck), ck, nil

	case domain.TaskFactoryReset:
		return sess.CreateFactoryReset(""), "", nil

	case domain.TaskDownload:
		if task.Params.Download == nil || task.Params.Download.URL == "" {
			return "", "", fmt.Errorf("download task has no URL")
		}
		ck := cwmp.EncodeCommandKey(task.ID, time.Now())
		return sess.CreateDownload("", ck, *task.Params.Download), ck, nil

	case domain.TaskUpload:
		if task.Params.Upload == nil || task.Params.Upload.URL == "" {
			return "", "", fmt.Errorf("upload task has no URL")
		}
		ck := cwmp.EncodeCommandKey(task.ID, time.Now())
		return sess.CreateUpload("", ck, *task.Params.Upload), ck, nil

	case domain.TaskAddObject:
		if task.Params.ObjectName == "" {
			return "", "", fmt.Errorf("add_object task has no object name")
		}
		return sess.CreateAddObject("", task.Params.ObjectName, ""), "", nil

	case domain.TaskDeleteObject:
		if task.Params.ObjectName == "" {
			return "", "", fmt.Errorf("delete_object task has no object name")
		}
		return sess.CreateDeleteObject("", task.Params.ObjectName, ""), "", nil

	default:
		return "", "", fmt.Errorf("task type %q has no wire encoding", task.Type)
	}
}

func (s *AcsService) saveState(ctx context.Context, sess *cwmp.Session, deviceKey, taskID string) {
	st := sess.State(deviceKey)
	st.TaskID = taskID
	if err := s.sessions.Save(ctx, st); err != nil {
		s.log.Warn("persist session", "device_key", deviceKey, "err", err)
	}
}

// Parameter paths the Inform commonly reports, in both data model roots.
var (
	connReqURLPaths = []string{
		"InternetGatewayDevice.ManagementServer.ConnectionRequestURL",
		"Device.ManagementServer.ConnectionRequestURL",
	}
	softwareVersionPaths = []string{
		"InternetGatewayDevice.DeviceInfo.SoftwareVersion",
		"Device.DeviceInfo.SoftwareVersion",
	}
	hardwareVersionPaths = []string{
		"InternetGatewayDevice.DeviceInfo.HardwareVersion",
		"Device.DeviceInfo.HardwareVersion",
	}
	udpAddressPaths = []string{
		"InternetGatewayDevice.ManagementServer.UDPConnectionRequestAddress",
		"Device.ManagementServer.UDPConnectionRequestAddress",
	}
	jabberIDPaths = []string{
		"InternetGatewayDevice.ManagementServer.ConnReqJabberID",
		"Device.ManagementServer.ConnReqJabberID",
	}
)

func firstParam(params map[string]domain.ParamValue, names []string) string {
	for _, n := range names {
		if v, ok := params[n]; ok && v.Value != "" {
			return v.Value
		}
	}
	return ""
}

func applyInformParameters(device *domain.Device, params map[string]domain.ParamValue) {
	if v := firstParam(params, connReqURLPaths); v != "" {
		device.ConnectionRequestURL = v
	}
	if v := firstParam(params, softwareVersionPaths); v != "" {
		device.SoftwareVersion = v
	}
	if v := firstParam(params, hardwareVersionPaths); v != "" {
		device.HardwareVersion = v
	}
	if v := firstParam(params, udpAddressPaths); v != "" {
		device.UDPAddress = v
	}
	if v := firstParam(params, jabberIDPaths); v != "" {
		device.XMPPJID = v
		device.XMPPEnabled = true
	}
}

// rootPathFor infers the device's data model root from the parameter cache,
// defaulting to TR-098 for devices that have not reported parameters yet.
func (s *AcsService) rootPathFor(ctx context.Context, device *domain.Device) string {
	all, err := s.params.GetAll(ctx, device.ID)
	if err == nil {
		if model := datamodel.Infer(all); model != domain.DataModelUnknown {
			return model.RootPath()
		}
	}
	return domain.DataModelTR098.RootPath()
}
