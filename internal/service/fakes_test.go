package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/langchou/fleetcare/internal/models"
	"github.com/langchou/fleetcare/internal/notify"
	"github.com/langchou/fleetcare/internal/repository"
)

type sentEvent struct {
	Type notify.EventType
	Key  string
	Data interface{}
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (n *fakeNotifier) Notify(eventType notify.EventType, key string, data interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{Type: eventType, Key: key, Data: data})
}

func (n *fakeNotifier) types() []notify.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	var types []notify.EventType
	for _, e := range n.events {
		types = append(types, e.Type)
	}
	return types
}

// fakeScheduleStore 内存预约存储，重复检查与仓库一致
type fakeScheduleStore struct {
	mu        sync.Mutex
	nextID    int64
	schedules map[int64]*models.CheckupSchedule
	now       time.Time
}

func newFakeScheduleStore() *fakeScheduleStore {
	return &fakeScheduleStore{
		schedules: make(map[int64]*models.CheckupSchedule),
		now:       time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC),
	}
}

func (f *fakeScheduleStore) Create(ctx context.Context, s *models.CheckupSchedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.schedules {
		if existing.Chassis == s.Chassis && existing.State != models.ScheduleRejected &&
			existing.Type == s.Type && existing.HasCampaigns == s.HasCampaigns &&
			existing.ScheduledAt.After(f.now) {
			return repository.ErrDuplicate
		}
	}
	f.nextID++
	s.ID = f.nextID
	number := 1000 + f.nextID
	s.ScheduleNumber = &number
	cp := *s
	f.schedules[s.ID] = &cp
	return nil
}

func (f *fakeScheduleStore) GetByID(ctx context.Context, id int64) (*models.CheckupSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schedules[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeScheduleStore) ListByChassis(ctx context.Context, chassisNumber string) ([]models.CheckupSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.CheckupSchedule{}
	for _, s := range f.schedules {
		if s.Chassis == chassisNumber {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeScheduleStore) UpdateState(ctx context.Context, id int64, from, to models.ScheduleState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schedules[id]
	if !ok || s.State != from {
		return repository.ErrStaleVersion
	}
	s.State = to
	return nil
}

func (f *fakeScheduleStore) Reschedule(ctx context.Context, id int64, from models.ScheduleState, scheduledAt time.Time, consultantID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schedules[id]
	if !ok || s.State != from {
		return repository.ErrStaleVersion
	}
	s.ScheduledAt = scheduledAt
	s.ConsultantID = consultantID
	s.State = models.SchedulePending
	return nil
}

// setMaintenance 模拟仓库在工单写入时同步镜像
func (f *fakeScheduleStore) setMaintenance(id int64, m models.Maintenance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schedules[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.Maintenance = m
	return nil
}

type fakeCheckupStore map[int64]*models.Checkup

func (f fakeCheckupStore) GetByID(ctx context.Context, id int64) (*models.Checkup, error) {
	c, ok := f[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

// fakeTicketStore 内存工单存储，版本号乐观锁，写入时同步预约镜像
type fakeTicketStore struct {
	mu        sync.Mutex
	nextID    int64
	tickets   map[int64][]byte
	schedules *fakeScheduleStore
}

func newFakeTicketStore(schedules *fakeScheduleStore) *fakeTicketStore {
	return &fakeTicketStore{tickets: make(map[int64][]byte), schedules: schedules}
}

func (f *fakeTicketStore) save(t *models.MaintenanceTicket) {
	raw, _ := json.Marshal(t)
	f.tickets[t.ID] = raw
}

func (f *fakeTicketStore) load(id int64) (*models.MaintenanceTicket, bool) {
	raw, ok := f.tickets[id]
	if !ok {
		return nil, false
	}
	t := &models.MaintenanceTicket{}
	_ = json.Unmarshal(raw, t)
	return t, true
}

func (f *fakeTicketStore) Create(ctx context.Context, t *models.MaintenanceTicket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id := range f.tickets {
		existing, _ := f.load(id)
		if existing.ScheduleID == t.ScheduleID {
			return repository.ErrDuplicate
		}
	}
	f.nextID++
	t.ID = f.nextID
	t.Version = 1
	if err := f.schedules.setMaintenance(t.ScheduleID, t.Mirror()); err != nil {
		return err
	}
	f.save(t)
	return nil
}

func (f *fakeTicketStore) GetByID(ctx context.Context, id int64) (*models.MaintenanceTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.load(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t, nil
}

func (f *fakeTicketStore) Update(ctx context.Context, t *models.MaintenanceTicket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.load(t.ID)
	if !ok || current.Version != t.Version {
		return repository.ErrStaleVersion
	}
	t.Version++
	if err := f.schedules.setMaintenance(t.ScheduleID, t.Mirror()); err != nil {
		return err
	}
	f.save(t)
	return nil
}

// fakeBayStore 内存工位存储，冲突判定与仓库一致
type fakeBayStore struct {
	mu        sync.Mutex
	nextID    int64
	bays      map[int64]*models.ServiceBay
	schedules []*models.ServiceBaySchedule
}

func newFakeBayStore(bays ...models.ServiceBay) *fakeBayStore {
	f := &fakeBayStore{bays: make(map[int64]*models.ServiceBay)}
	for i := range bays {
		f.bays[bays[i].ID] = &bays[i]
	}
	return f
}

func (f *fakeBayStore) conflict(bayID int64, start, end time.Time) bool {
	for _, s := range f.schedules {
		if s.ServiceBayID == bayID && s.Active && models.Overlaps(s.StartDate, s.EndDate, start, end) {
			return true
		}
	}
	return false
}

func (f *fakeBayStore) Book(ctx context.Context, s *models.ServiceBaySchedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	bay, ok := f.bays[s.ServiceBayID]
	if !ok || !bay.Active {
		return repository.ErrNotFound
	}
	if f.conflict(s.ServiceBayID, s.StartDate, s.EndDate) {
		return repository.ErrConflict
	}
	f.nextID++
	s.ID = f.nextID
	s.Active = true
	cp := *s
	f.schedules = append(f.schedules, &cp)
	return nil
}

func (f *fakeBayStore) Cancel(ctx context.Context, id int64) (*models.ServiceBaySchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.schedules {
		if s.ID == id {
			s.Active = false
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeBayStore) HasConflict(ctx context.Context, bayID int64, start, end time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conflict(bayID, start, end), nil
}

func (f *fakeBayStore) GetBay(ctx context.Context, id int64) (*models.ServiceBay, error) {
	bay, ok := f.bays[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return bay, nil
}

func (f *fakeBayStore) ListByBay(ctx context.Context, bayID int64, activeOnly bool) ([]models.ServiceBaySchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.ServiceBaySchedule{}
	for _, s := range f.schedules {
		if s.ServiceBayID == bayID && (!activeOnly || s.Active) {
			out = append(out, *s)
		}
	}
	return out, nil
}

// fakeOccurrenceStore 内存事件存储
type fakeOccurrenceStore struct {
	mu          sync.Mutex
	nextStepID  int64
	types       []models.OccurrenceStepType
	occurrences map[string]*models.Occurrence
}

func newFakeOccurrenceStore() *fakeOccurrenceStore {
	return &fakeOccurrenceStore{
		types: []models.OccurrenceStepType{
			{ID: 1, Code: "CHAMADO", Name: "Chamado", Position: 1, HoursElapsed: 1},
			{ID: 2, Code: "TRIAGEM", Name: "Triagem", Position: 2, HoursElapsed: 2},
			{ID: 4, Code: "DIAGNOSE", Name: "Diagnose", Position: 4, HoursElapsed: 8},
			{ID: 8, Code: "ENTREGA", Name: "Entrega", Position: 8, HoursElapsed: 0},
		},
		occurrences: make(map[string]*models.Occurrence),
	}
}

func (f *fakeOccurrenceStore) CreateStepType(ctx context.Context, st *models.OccurrenceStepType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.types {
		if t.Code == st.Code {
			return repository.ErrDuplicate
		}
	}
	st.ID = int64(len(f.types) + 100)
	f.types = append(f.types, *st)
	return nil
}

func (f *fakeOccurrenceStore) openStep(o *models.Occurrence, st models.OccurrenceStepType, at time.Time) {
	f.nextStepID++
	o.Steps = append(o.Steps, models.OccurrenceStep{
		ID:           f.nextStepID,
		OccurrenceID: o.ID,
		StepType:     st,
		DtStart:      at,
		Latest:       true,
	})
}

func (f *fakeOccurrenceStore) Create(ctx context.Context, o *models.Occurrence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.types) == 0 {
		return repository.ErrNotFound
	}
	o.ID = int64(len(f.occurrences) + 1)
	f.openStep(o, f.types[0], o.StartDate)
	cp := *o
	f.occurrences[o.UUID] = &cp
	return nil
}

func (f *fakeOccurrenceStore) ChangeStep(ctx context.Context, uuid, stepCode string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.occurrences[uuid]
	if !ok {
		return false, repository.ErrNotFound
	}
	if o.Finalized() {
		return false, repository.ErrFinalized
	}
	var target *models.OccurrenceStepType
	for i := range f.types {
		if f.types[i].Code == stepCode {
			target = &f.types[i]
		}
	}
	if target == nil {
		return false, repository.ErrUnknownStepType
	}
	if cur := o.CurrentStep(); cur != nil && cur.StepType.ID == target.ID {
		return false, nil
	}
	for i := range o.Steps {
		if o.Steps[i].Latest {
			o.Steps[i].Latest = false
			if o.Steps[i].DtEnd == nil {
				end := now
				o.Steps[i].DtEnd = &end
			}
		}
	}
	f.openStep(o, *target, now)
	return true, nil
}

func (f *fakeOccurrenceStore) Finalize(ctx context.Context, uuid string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.occurrences[uuid]
	if !ok {
		return repository.ErrNotFound
	}
	if o.Finalized() {
		return repository.ErrFinalized
	}
	o.EndDate = &now
	if cur := o.CurrentStep(); cur != nil {
		end := now
		cur.DtEnd = &end
	}
	return nil
}

func (f *fakeOccurrenceStore) GetByUUID(ctx context.Context, uuid string) (*models.Occurrence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.occurrences[uuid]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *o
	cp.Steps = append([]models.OccurrenceStep(nil), o.Steps...)
	return &cp, nil
}

func (f *fakeOccurrenceStore) ListOpen(ctx context.Context) ([]models.Occurrence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Occurrence{}
	for _, o := range f.occurrences {
		if o.Finalized() {
			continue
		}
		cur := o.CurrentStep()
		if cur == nil {
			continue
		}
		cp := *o
		cp.Steps = []models.OccurrenceStep{*cur}
		out = append(out, cp)
	}
	return out, nil
}
