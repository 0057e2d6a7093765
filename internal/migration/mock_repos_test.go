package migration

import (
	"context"
	"sort"
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
	byKey   map[string]*domain.Device
}

func newMockDeviceRepo() *mockDeviceRepo {
	return &mockDeviceRepo{
		devices: make(map[uuid.UUID]*domain.Device),
		byKey:   make(map[string]*domain.Device),
	}
}

func (m *mockDeviceRepo) Create(_ context.Context, d *domain.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byKey[d.DeviceKey]; exists {
		return domain.ErrConflict
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	m.devices[d.ID] = d
	m.byKey[d.DeviceKey] = d
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
	if d, ok := m.byKey[key]; ok {
		return d, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockDeviceRepo) FindSiblings(_ context.Context, serialNumber, productClass, excludeKey string) ([]*domain.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Device
	for _, d := range m.devices {
		if d.SerialNumber == serialNumber && d.ProductClass == productClass && d.DeviceKey != excludeKey {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceKey < out[j].DeviceKey })
	return out, nil
}

func (m *mockDeviceRepo) List(_ context.Context, f domain.DeviceFilter) ([]*domain.Device, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Device
	for _, d := range m.devices {
		if f.ProductClass != nil && d.ProductClass != *f.ProductClass {
			continue
		}
		if f.Online != nil && d.Online != *f.Online {
			continue
		}
		out = append(out, d)
	}
	return out, len(out), nil
}

func (m *mockDeviceRepo) Update(_ context.Context, d *domain.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[d.ID]; !ok {
		return domain.ErrNotFound
	}
	m.devices[d.ID] = d
	m.byKey[d.DeviceKey] = d
	return nil
}

func (m *mockDeviceRepo) UpdateTags(_ context.Context, id uuid.UUID, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return domain.ErrNotFound
	}
	d.Tags = tags
	return nil
}

func (m *mockDeviceRepo) UpdateOnline(_ context.Context, id uuid.UUID, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return domain.ErrNotFound
	}
	d.Online = online
	return nil
}

func (m *mockDeviceRepo) SetLastInform(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return domain.ErrNotFound
	}
	d.LastInform = &at
	return nil
}

func (m *mockDeviceRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(m.byKey, d.DeviceKey)
	delete(m.devices, id)
	return nil
}

func (m *mockDeviceRepo) CountOnline(_ context.Context) (int, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	online := 0
	for _, d := range m.devices {
		if d.Online {
			online++
		}
	}
	return online, len(m.devices), nil
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
	t.CreatedAt = time.Now()
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

func (m *mockTaskRepo) List(_ context.Context, f domain.TaskFilter) ([]*domain.Task, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Task
	for _, id := range m.order {
		t := m.tasks[id]
		if f.DeviceID != nil && t.DeviceID != *f.DeviceID {
			continue
		}
		if f.Status != nil && t.Status != *f.Status {
			continue
		}
		if f.Type != nil && t.Type != *f.Type {
			continue
		}
		out = append(out, t)
	}
	return out, len(out), nil
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
	now := time.Now()
	t.Status = domain.TaskStatusSent
	t.CommandKey = commandKey
	t.SentAt = &now
	return nil
}

func (m *mockTaskRepo) Finish(_ context.Context, id uuid.UUID, status domain.TaskStatus, result string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return domain.ErrNotFound
	}
	if t.Status.IsTerminal() {
		return domain.ErrTaskTerminal
	}
	now := time.Now()
	t.Status = status
	t.Result = result
	t.FinishedAt = &now
	return nil
}

func (m *mockTaskRepo) Cancel(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return domain.ErrNotFound
	}
	if t.Status.IsTerminal() {
		return domain.ErrTaskTerminal
	}
	t.Status = domain.TaskStatusCancelled
	return nil
}

// byDevice returns the device's tasks in creation order.
func (m *mockTaskRepo) byDevice(deviceID uuid.UUID) []*domain.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Task
	for _, id := range m.order {
		if m.tasks[id].DeviceID == deviceID {
			out = append(out, m.tasks[id])
		}
	}
	return out
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
	if _, ok := m.backups[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.backups, id)
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
		m.params[deviceID][name] = &domain.Parameter{
			DeviceID: deviceID, Name: name, Value: v.Value, Type: v.Type, UpdatedAt: time.Now(),
		}
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
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Firmware
	for _, fw := range m.firmwares {
		out = append(out, fw)
	}
	return out, nil
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
	if _, ok := m.firmwares[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.firmwares, id)
	return nil
}

// --- Mock Merge Runner ---

// mockMergeRunner applies mutations against in-memory state through a
// staged copy, committing only when fn succeeds. failOn lets a test inject
// a failure mid-merge and assert that nothing leaked.
type mockMergeRunner struct {
	devices *mockDeviceRepo
	backups *mockBackupRepo
	failOn  string
}

type mergeOp struct {
	apply func()
}

type mockMergeTx struct {
	r   *mockMergeRunner
	ops []mergeOp
}

func (tx *mockMergeTx) TransferBackups(_ context.Context, fromDevice, toDevice uuid.UUID) (int, error) {
	if tx.r.failOn == "transfer_backups" {
		return 0, domain.ErrConflict
	}
	tx.r.backups.mu.RLock()
	var moved []*domain.ConfigBackup
	for _, b := range tx.r.backups.backups {
		if b.DeviceID == fromDevice {
			moved = append(moved, b)
		}
	}
	tx.r.backups.mu.RUnlock()
	for _, b := range moved {
		b := b
		tx.ops = append(tx.ops, mergeOp{apply: func() { b.DeviceID = toDevice }})
	}
	return len(moved), nil
}

func (tx *mockMergeTx) CopyConnectionCredentials(_ context.Context, fromDevice, toDevice uuid.UUID) error {
	if tx.r.failOn == "copy_credentials" {
		return domain.ErrConflict
	}
	from := tx.r.devices.devices[fromDevice]
	to := tx.r.devices.devices[toDevice]
	tx.ops = append(tx.ops, mergeOp{apply: func() {
		to.ConnectionRequestUser = from.ConnectionRequestUser
		to.ConnectionRequestPassword = from.ConnectionRequestPassword
	}})
	return nil
}

func (tx *mockMergeTx) CopySubscriber(_ context.Context, fromDevice, toDevice uuid.UUID) error {
	if tx.r.failOn == "copy_subscriber" {
		return domain.ErrConflict
	}
	from := tx.r.devices.devices[fromDevice]
	to := tx.r.devices.devices[toDevice]
	tx.ops = append(tx.ops, mergeOp{apply: func() { to.SubscriberID = from.SubscriberID }})
	return nil
}

func (tx *mockMergeTx) UpdateTags(_ context.Context, id uuid.UUID, tags []string) error {
	if tx.r.failOn == "update_tags" {
		return domain.ErrConflict
	}
	d := tx.r.devices.devices[id]
	tx.ops = append(tx.ops, mergeOp{apply: func() { d.Tags = tags }})
	return nil
}

func (tx *mockMergeTx) SetOffline(_ context.Context, id uuid.UUID) error {
	if tx.r.failOn == "set_offline" {
		return domain.ErrConflict
	}
	d := tx.r.devices.devices[id]
	tx.ops = append(tx.ops, mergeOp{apply: func() { d.Online = false }})
	return nil
}

func (r *mockMergeRunner) RunMerge(_ context.Context, fn func(tx domain.MergeTx) error) error {
	tx := &mockMergeTx{r: r}
	if err := fn(tx); err != nil {
		return err
	}
	for _, op := range tx.ops {
		op.apply()
	}
	return nil
}
