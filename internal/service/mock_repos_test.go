package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crestwave/acs/internal/domain"
)

type mockDeviceRepo struct {
	mu    sync.RWMutex
	byKey map[string]*domain.Device
}

func newMockDeviceRepo() *mockDeviceRepo {
	return &mockDeviceRepo{byKey: map[string]*domain.Device{}}
}

func (m *mockDeviceRepo) Create(_ context.Context, d *domain.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byKey[d.DeviceKey]; ok {
		return domain.ErrConflict
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = time.Now()
	m.byKey[d.DeviceKey] = d
	return nil
}

func (m *mockDeviceRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.byKey {
		if d.ID == id {
			cp := *d
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockDeviceRepo) GetByKey(_ context.Context, key string) (*domain.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.byKey[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockDeviceRepo) FindSiblings(_ context.Context, serialNumber, productClass, excludeKey string) ([]*domain.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Device
	for _, d := range m.byKey {
		if d.SerialNumber == serialNumber && d.ProductClass == productClass && d.DeviceKey != excludeKey {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockDeviceRepo) List(_ context.Context, _ domain.DeviceFilter) ([]*domain.Device, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Device
	for _, d := range m.byKey {
		cp := *d
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *mockDeviceRepo) Update(_ context.Context, d *domain.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byKey[d.DeviceKey]; !ok {
		return domain.ErrNotFound
	}
	cp := *d
	m.byKey[d.DeviceKey] = &cp
	return nil
}

func (m *mockDeviceRepo) UpdateTags(_ context.Context, id uuid.UUID, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.byKey {
		if d.ID == id {
			d.Tags = tags
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockDeviceRepo) UpdateOnline(_ context.Context, id uuid.UUID, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.byKey {
		if d.ID == id {
			d.Online = online
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockDeviceRepo) SetLastInform(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.byKey {
		if d.ID == id {
			d.LastInform = &at
			d.Online = true
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockDeviceRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, d := range m.byKey {
		if d.ID == id {
			delete(m.byKey, key)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockDeviceRepo) CountOnline(_ context.Context) (int, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	online := 0
	for _, d := range m.byKey {
		if d.Online {
			online++
		}
	}
	return online, len(m.byKey), nil
}

type mockParamRepo struct {
	mu       sync.RWMutex
	params   map[uuid.UUID]map[string]domain.ParamValue
	writable map[uuid.UUID]map[string]bool
}

func newMockParamRepo() *mockParamRepo {
	return &mockParamRepo{
		params:   map[uuid.UUID]map[string]domain.ParamValue{},
		writable: map[uuid.UUID]map[string]bool{},
	}
}

func (m *mockParamRepo) Upsert(_ context.Context, deviceID uuid.UUID, params map[string]domain.ParamValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.params[deviceID] == nil {
		m.params[deviceID] = map[string]domain.ParamValue{}
	}
	for k, v := range params {
		m.params[deviceID][k] = v
	}
	return nil
}

func (m *mockParamRepo) SetWritable(_ context.Context, deviceID uuid.UUID, writable map[string]bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writable[deviceID] == nil {
		m.writable[deviceID] = map[string]bool{}
	}
	for k, v := range writable {
		m.writable[deviceID][k] = v
	}
	return nil
}

func (m *mockParamRepo) GetAll(_ context.Context, deviceID uuid.UUID) ([]*domain.Parameter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Parameter
	for k, v := range m.params[deviceID] {
		out = append(out, &domain.Parameter{DeviceID: deviceID, Name: k, Value: v.Value, Type: v.Type})
	}
	return out, nil
}

func (m *mockParamRepo) GetByNames(_ context.Context, deviceID uuid.UUID, names []string) ([]*domain.Parameter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Parameter
	for _, n := range names {
		if v, ok := m.params[deviceID][n]; ok {
			out = append(out, &domain.Parameter{DeviceID: deviceID, Name: n, Value: v.Value, Type: v.Type})
		}
	}
	return out, nil
}

func (m *mockParamRepo) GetByPrefix(_ context.Context, deviceID uuid.UUID, prefixes []string) ([]*domain.Parameter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Parameter
	for k, v := range m.params[deviceID] {
		for _, p := range prefixes {
			if len(k) >= len(p) && k[:len(p)] == p {
				out = append(out, &domain.Parameter{DeviceID: deviceID, Name: k, Value: v.Value, Type: v.Type})
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

type mockTaskRepo struct {
	mu    sync.RWMutex
	order []*domain.Task
}

func newMockTaskRepo() *mockTaskRepo {
	return &mockTaskRepo{}
}

func (m *mockTaskRepo) Create(_ context.Context, t *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now()
	m.order = append(m.order, t)
	return nil
}

func (m *mockTaskRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.order {
		if t.ID == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockTaskRepo) GetByCommandKey(_ context.Context, commandKey string) (*domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.order {
		if t.CommandKey == commandKey {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockTaskRepo) NextPending(_ context.Context, deviceID uuid.UUID) (*domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.order {
		if t.DeviceID == deviceID && t.Status == domain.TaskStatusPending {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockTaskRepo) List(_ context.Context, _ domain.TaskFilter) ([]*domain.Task, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Task
	for _, t := range m.order {
		cp := *t
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *mockTaskRepo) CountPending(_ context.Context, deviceID uuid.UUID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, t := range m.order {
		if t.DeviceID == deviceID && t.Status == domain.TaskStatusPending {
			n++
		}
	}
	return n, nil
}

func (m *mockTaskRepo) MarkSent(_ context.Context, id uuid.UUID, commandKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.order {
		if t.ID == id {
			if t.Status != domain.TaskStatusPending {
				return domain.ErrTaskTerminal
			}
			now := time.Now()
			t.Status = domain.TaskStatusSent
			t.SentAt = &now
			t.CommandKey = commandKey
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockTaskRepo) Finish(_ context.Context, id uuid.UUID, status domain.TaskStatus, result string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.order {
		if t.ID == id {
			if t.Status.IsTerminal() {
				return domain.ErrTaskTerminal
			}
			now := time.Now()
			t.Status = status
			t.Result = result
			t.FinishedAt = &now
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockTaskRepo) Cancel(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.order {
		if t.ID == id {
			if t.Status.IsTerminal() {
				return domain.ErrTaskTerminal
			}
			t.Status = domain.TaskStatusCancelled
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockTaskRepo) get(id uuid.UUID) *domain.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.order {
		if t.ID == id {
			cp := *t
			return &cp
		}
	}
	return nil
}

type mockBackupRepo struct {
	mu      sync.RWMutex
	backups []*domain.ConfigBackup
}

func newMockBackupRepo() *mockBackupRepo {
	return &mockBackupRepo{}
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
	m.backups = append(m.backups, b)
	return nil
}

func (m *mockBackupRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.ConfigBackup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.backups {
		if b.ID == id {
			return b, nil
		}
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
	for i, b := range m.backups {
		if b.ID == id {
			m.backups = append(m.backups[:i], m.backups[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

type mockSessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.CwmpSession
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{sessions: map[string]*domain.CwmpSession{}}
}

func (m *mockSessionStore) Get(_ context.Context, deviceKey string) (*domain.CwmpSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[deviceKey]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockSessionStore) Save(_ context.Context, sess *domain.CwmpSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sess
	m.sessions[sess.DeviceKey] = &cp
	return nil
}

func (m *mockSessionStore) Delete(_ context.Context, deviceKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, deviceKey)
	return nil
}

type mockWorkflowRunner struct {
	mu        sync.Mutex
	connects  []uuid.UUID
	sent      []uuid.UUID
	finished  []uuid.UUID
	succeeded []bool
}

func (m *mockWorkflowRunner) ExecuteForDevice(_ context.Context, d *domain.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects = append(m.connects, d.ID)
	return nil
}

func (m *mockWorkflowRunner) OnTaskSent(_ context.Context, taskID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, taskID)
	return nil
}

func (m *mockWorkflowRunner) OnTaskFinished(_ context.Context, task *domain.Task, succeeded bool, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, task.ID)
	m.succeeded = append(m.succeeded, succeeded)
	return nil
}

type mockReconciler struct {
	mu     sync.Mutex
	calls  int
	result *domain.MergeResult
}

func (m *mockReconciler) Reconcile(_ context.Context, successor *domain.Device) (*domain.MergeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.result != nil {
		return m.result, nil
	}
	return &domain.MergeResult{SuccessorID: successor.ID}, nil
}
