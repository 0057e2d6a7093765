package workflow

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crestwave/acs/internal/domain"
)

// --- Mock Device Repository ---

type mockDeviceRepo struct {
	mu      sync.RWMutex
	devices map[uuid.UUID]*domain.Device
}

func newMockDeviceRepo() *mockDeviceRepo {
	return &mockDeviceRepo{devices: make(map[uuid.UUID]*domain.Device)}
}

func (m *mockDeviceRepo) Create(_ context.Context, d *domain.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	m.devices[d.ID] = d
	return nil
}

func (m *mockDeviceRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.devices[id]; ok {
		return d, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockDeviceRepo) GetByKey(_ context.Context, key string) (*domain.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.devices {
		if d.DeviceKey == key {
			return d, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockDeviceRepo) FindSiblings(_ context.Context, serialNumber, productClass, excludeKey string) ([]*domain.Device, error) {
	return nil, nil
}

func (m *mockDeviceRepo) List(_ context.Context, _ domain.DeviceFilter) ([]*domain.Device, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Device
	for _, d := range m.devices {
		out = append(out, d)
	}
	return out, len(out), nil
}

func (m *mockDeviceRepo) Update(_ context.Context, d *domain.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[d.ID] = d
	return nil
}

func (m *mockDeviceRepo) UpdateTags(_ context.Context, id uuid.UUID, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.devices[id]; ok {
		d.Tags = tags
		return nil
	}
	return domain.ErrNotFound
}

func (m *mockDeviceRepo) UpdateOnline(_ context.Context, id uuid.UUID, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.devices[id]; ok {
		d.Online = online
		return nil
	}
	return domain.ErrNotFound
}

func (m *mockDeviceRepo) SetLastInform(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.devices[id]; ok {
		d.LastInform = &at
		return nil
	}
	return domain.ErrNotFound
}

func (m *mockDeviceRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.devices, id)
	return nil
}

func (m *mockDeviceRepo) CountOnline(_ context.Context) (int, int, error) {
	return 0, 0, nil
}

// --- Mock Group Repository ---

type mockGroupRepo struct {
	mu     sync.RWMutex
	groups map[uuid.UUID]*domain.DeviceGroup
}

func newMockGroupRepo() *mockGroupRepo {
	return &mockGroupRepo{groups: make(map[uuid.UUID]*domain.DeviceGroup)}
}

func (m *mockGroupRepo) Create(_ context.Context, g *domain.DeviceGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	m.groups[g.ID] = g
	return nil
}

func (m *mockGroupRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.DeviceGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if g, ok := m.groups[id]; ok {
		return g, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockGroupRepo) List(_ context.Context) ([]*domain.DeviceGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.DeviceGroup
	for _, g := range m.groups {
		out = append(out, g)
	}
	return out, nil
}

func (m *mockGroupRepo) Update(_ context.Context, g *domain.DeviceGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[g.ID] = g
	return nil
}

func (m *mockGroupRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.groups, id)
	return nil
}

// --- Mock Workflow Repository ---

type mockWorkflowRepo struct {
	mu        sync.RWMutex
	workflows map[uuid.UUID]*domain.GroupWorkflow
}

func newMockWorkflowRepo() *mockWorkflowRepo {
	return &mockWorkflowRepo{workflows: make(map[uuid.UUID]*domain.GroupWorkflow)}
}

func (m *mockWorkflowRepo) Create(_ context.Context, wf *domain.GroupWorkflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wf.ID == uuid.Nil {
		wf.ID = uuid.New()
	}
	if wf.Status == "" {
		wf.Status = domain.WorkflowActive
	}
	m.workflows[wf.ID] = wf
	return nil
}

func (m *mockWorkflowRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.GroupWorkflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if wf, ok := m.workflows[id]; ok {
		return wf, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockWorkflowRepo) List(_ context.Context) ([]*domain.GroupWorkflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.GroupWorkflow
	for _, wf := range m.workflows {
		out = append(out, wf)
	}
	return out, nil
}

func (m *mockWorkflowRepo) ListActiveByGroup(_ context.Context, groupID uuid.UUID) ([]*domain.GroupWorkflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.GroupWorkflow
	for _, wf := range m.workflows {
		if wf.GroupID == groupID && wf.Status == domain.WorkflowActive {
			out = append(out, wf)
		}
	}
	return out, nil
}

func (m *mockWorkflowRepo) ListDependents(_ context.Context, id uuid.UUID) ([]*domain.GroupWorkflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.GroupWorkflow
	for _, wf := range m.workflows {
		if wf.DependsOnWorkflowID != nil && *wf.DependsOnWorkflowID == id && wf.Status == domain.WorkflowActive {
			out = append(out, wf)
		}
	}
	return out, nil
}

func (m *mockWorkflowRepo) UpdateStatus(_ context.Context, id uuid.UUID, status domain.WorkflowStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[id]
	if !ok {
		return domain.ErrNotFound
	}
	wf.Status = status
	return nil
}

func (m *mockWorkflowRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.workflows, id)
	return nil
}

// --- Mock Execution Repository ---

type mockExecutionRepo struct {
	mu         sync.RWMutex
	executions map[uuid.UUID]*domain.WorkflowExecution
}

func newMockExecutionRepo() *mockExecutionRepo {
	return &mockExecutionRepo{executions: make(map[uuid.UUID]*domain.WorkflowExecution)}
}

func (m *mockExecutionRepo) Create(_ context.Context, ex *domain.WorkflowExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.executions {
		if e.WorkflowID == ex.WorkflowID && e.DeviceID == ex.DeviceID {
			return domain.ErrConflict
		}
	}
	if ex.ID == uuid.Nil {
		ex.ID = uuid.New()
	}
	ex.CreatedAt = time.Now()
	m.executions[ex.ID] = ex
	return nil
}

func (m *mockExecutionRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.WorkflowExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ex, ok := m.executions[id]; ok {
		return ex, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockExecutionRepo) GetByWorkflowAndDevice(_ context.Context, workflowID, deviceID uuid.UUID) (*domain.WorkflowExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ex := range m.executions {
		if ex.WorkflowID == workflowID && ex.DeviceID == deviceID {
			return ex, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockExecutionRepo) GetByTask(_ context.Context, taskID uuid.UUID) (*domain.WorkflowExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ex := range m.executions {
		if ex.TaskID != nil && *ex.TaskID == taskID {
			return ex, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockExecutionRepo) ListByWorkflow(_ context.Context, workflowID uuid.UUID) ([]*domain.WorkflowExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.WorkflowExecution
	for _, ex := range m.executions {
		if ex.WorkflowID == workflowID {
			out = append(out, ex)
		}
	}
	return out, nil
}

func (m *mockExecutionRepo) UpdateStatus(_ context.Context, id uuid.UUID, status domain.ExecutionStatus, result string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ex, ok := m.executions[id]
	if !ok {
		return domain.ErrNotFound
	}
	ex.Status = status
	ex.Result = result
	ex.UpdatedAt = time.Now()
	return nil
}

func (m *mockExecutionRepo) SetTask(_ context.Context, id uuid.UUID, taskID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ex, ok := m.executions[id]
	if !ok {
		return domain.ErrNotFound
	}
	ex.TaskID = &taskID
	return nil
}

func (m *mockExecutionRepo) CountByStatus(_ context.Context, workflowID uuid.UUID) (map[domain.ExecutionStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[domain.ExecutionStatus]int)
	for _, ex := range m.executions {
		if ex.WorkflowID == workflowID {
			counts[ex.Status]++
		}
	}
	return counts, nil
}

// --- Mock Task Repository ---

type mockTaskRepo struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*domain.Task
	order []uuid.UUID
}

func newMockTaskRepo() *mockTaskRepo {
	return &mockTaskRepo{tasks: make(map[uuid.UUID]*domain.Task)}
}

func (m *mockTaskRepo) Create(_ context.Context, t *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	m.tasks[t.ID] = t
	m.order = append(m.order, t.ID)
	return nil
}

func (m *mockTaskRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.tasks[id]; ok {
		return t, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockTaskRepo) GetByCommandKey(_ context.Context, commandKey string) (*domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tasks {
		if t.CommandKey == commandKey {
			return t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockTaskRepo) NextPending(_ context.Context, deviceID uuid.UUID) (*domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		t := m.tasks[id]
		if t.DeviceID == deviceID && t.Status == domain.TaskStatusPending {
			return t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockTaskRepo) List(_ context.Context, _ domain.TaskFilter) ([]*domain.Task, int, error) {
	return nil, 0, nil
}

func (m *mockTaskRepo) CountPending(_ context.Context, deviceID uuid.UUID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, t := range m.tasks {
		if t.DeviceID == deviceID && t.Status == domain.TaskStatusPending {
			n++
		}
	}
	return n, nil
}

func (m *mockTaskRepo) MarkSent(_ context.Context, id uuid.UUID, commandKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.Status = domain.TaskStatusSent
	t.CommandKey = commandKey
	return nil
}

func (m *mockTaskRepo) Finish(_ context.Context, id uuid.UUID, status domain.TaskStatus, result string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.Status = status
	t.Result = result
	return nil
}

func (m *mockTaskRepo) Cancel(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.Status = domain.TaskStatusCancelled
	return nil
}

// --- Mock Parameter Repository ---

type mockParamRepo struct {
	mu     sync.RWMutex
	params map[uuid.UUID]map[string]*domain.Parameter
}

func newMockParamRepo() *mockParamRepo {
	return &mockParamRepo{params: make(map[uuid.UUID]map[string]*domain.Parameter)}
}

func (m *mockParamRepo) Upsert(_ context.Context, deviceID uuid.UUID, params map[string]domain.ParamValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.params[deviceID] == nil {
		m.params[deviceID] = make(map[string]*domain.Parameter)
	}
	for name, v := range params {
		m.params[deviceID][name] = &domain.Parameter{DeviceID: deviceID, Name: name, Value: v.Value, Type: v.Type}
	}
	return nil
}

func (m *mockParamRepo) SetWritable(_ context.Context, deviceID uuid.UUID, writable map[string]bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, w := range writable {
		if p, ok := m.params[deviceID][name]; ok {
			p.Writable = w
		}
	}
	return nil
}

func (m *mockParamRepo) GetAll(_ context.Context, deviceID uuid.UUID) ([]*domain.Parameter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Parameter
	for _, p := range m.params[deviceID] {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockParamRepo) GetByNames(_ context.Context, deviceID uuid.UUID, names []string) ([]*domain.Parameter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Parameter
	for _, name := range names {
		if p, ok := m.params[deviceID][name]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockParamRepo) GetByPrefix(_ context.Context, deviceID uuid.UUID, prefixes []string) ([]*domain.Parameter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Parameter
	for name, p := range m.params[deviceID] {
		for _, prefix := range prefixes {
			if strings.HasPrefix(name, prefix) {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

func (m *mockParamRepo) DeleteAll(_ context.Context, deviceID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.params, deviceID)
	return nil
}

// --- Mock Backup Repository ---

type mockBackupRepo struct {
	mu      sync.RWMutex
	backups map[uuid.UUID]*domain.ConfigBackup
}

func newMockBackupRepo() *mockBackupRepo {
	return &mockBackupRepo{backups: make(map[uuid.UUID]*domain.ConfigBackup)}
}

func (m *mockBackupRepo) Create(_ context.Context, b *domain.ConfigBackup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	m.backups[b.ID] = b
	return nil
}

func (m *mockBackupRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.ConfigBackup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.backups[id]; ok {
		return b, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockBackupRepo) ListByDevice(_ context.Context, deviceID uuid.UUID) ([]*domain.ConfigBackup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.ConfigBackup
	for _, b := range m.backups {
		if b.DeviceID == deviceID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *mockBackupRepo) LatestByPurpose(_ context.Context, deviceID uuid.UUID, purpose string, since time.Time) (*domain.ConfigBackup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *domain.ConfigBackup
	for _, b := range m.backups {
		if b.DeviceID != deviceID || b.Purpose != purpose || b.CreatedAt.Before(since) {
			continue
		}
		if latest == nil || b.CreatedAt.After(latest.CreatedAt) {
			latest = b
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	return latest, nil
}

func (m *mockBackupRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.backups, id)
	return nil
}

// --- Mock Firmware Repository ---

type mockFirmwareRepo struct {
	mu        sync.RWMutex
	firmwares map[uuid.UUID]*domain.Firmware
}

func newMockFirmwareRepo() *mockFirmwareRepo {
	return &mockFirmwareRepo{firmwares: make(map[uuid.UUID]*domain.Firmware)}
}

func (m *mockFirmwareRepo) Create(_ context.Context, fw *domain.Firmware) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fw.ID == uuid.Nil {
		fw.ID = uuid.New()
	}
	m.firmwares[fw.ID] = fw
	return nil
}

func (m *mockFirmwareRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Firmware, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if fw, ok := m.firmwares[id]; ok {
		return fw, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockFirmwareRepo) List(_ context.Context) ([]*domain.Firmware, error) {
	return nil, nil
}

func (m *mockFirmwareRepo) GetActiveForProductClass(_ context.Context, productClass string) (*domain.Firmware, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, fw := range m.firmwares {
		if !fw.Active {
			continue
		}
		for _, pc := range fw.ProductClasses {
			if pc == productClass {
				return fw, nil
			}
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockFirmwareRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fw, ok := m.firmwares[id]
	if !ok {
		return domain.ErrNotFound
	}
	fw.Active = active
	return nil
}

func (m *mockFirmwareRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.firmwares, id)
	return nil
}

// --- Mock Connection Requester ---

type mockRequester struct {
	mu       sync.Mutex
	requests []string
}

func (m *mockRequester) Request(_ context.Context, d *domain.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, d.DeviceKey)
	return nil
}

func (m *mockRequester) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// --- Mock WiFi Extractor ---

type mockExtractor struct {
	values map[string]domain.ParamValue
	err    error
}

func (m *mockExtractor) ExtractWiFi(_ context.Context, _ *domain.Device) (map[string]domain.ParamValue, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.values, nil
}
