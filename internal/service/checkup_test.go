package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/fleetcare/internal/apperr"
	"github.com/langchou/fleetcare/internal/checkup"
	"github.com/langchou/fleetcare/internal/models"
	"github.com/langchou/fleetcare/internal/notify"
)

const testChassis = "9BWZZZ377VT004251"

type fixedInterval int64

func (f fixedInterval) Resolve(ctx context.Context, chassisNumber string, group models.MaintenanceGroup) (int64, bool) {
	return int64(f), f > 0
}

type emptyCatalog struct{}

func (emptyCatalog) FindCheckup(ctx context.Context, group models.MaintenanceGroup, rangeStart int64) (*models.Checkup, error) {
	return nil, nil
}

func (emptyCatalog) ListParts(ctx context.Context, checkupID int64) ([]models.CheckupPart, error) {
	return nil, nil
}

func (emptyCatalog) ListOpenCampaigns(ctx context.Context, chassisNumber string) ([]models.FieldCampaign, error) {
	return []models.FieldCampaign{}, nil
}

type fakeMetrics struct {
	metrics *models.VehicleMetrics
	err     error
	block   bool
	calls   int
}

func (f *fakeMetrics) GetMetrics(ctx context.Context, chassisNumber string) (*models.VehicleMetrics, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.metrics, f.err
}

type fakeRevisions struct {
	revisions []models.Revision
	err       error
}

func (f *fakeRevisions) GetRevisions(ctx context.Context, chassisNumber string) ([]models.Revision, error) {
	return f.revisions, f.err
}

func float(v float64) *float64 { return &v }

type checkupFixture struct {
	svc       *CheckupService
	schedules *fakeScheduleStore
	notifier  *fakeNotifier
	metrics   *fakeMetrics
	revisions *fakeRevisions
}

func newCheckupFixture() *checkupFixture {
	f := &checkupFixture{
		schedules: newFakeScheduleStore(),
		notifier:  &fakeNotifier{},
		metrics:   &fakeMetrics{metrics: &models.VehicleMetrics{}},
		revisions: &fakeRevisions{},
	}
	engine := checkup.NewEngine(fixedInterval(10000), checkup.DefaultConfig(), zap.NewNop())
	reconciler := checkup.NewReconciler(engine, emptyCatalog{}, zap.NewNop())
	checkups := fakeCheckupStore{
		3: {ID: 3, RangeStart: 30000, MaintenanceGroup: models.GroupRodoviario, Type: "REVISAO"},
	}
	f.svc = NewCheckupService(zap.NewNop(), f.schedules, checkups, reconciler,
		f.metrics, f.revisions, f.notifier, 50*time.Millisecond)
	return f
}

func checkupInput(at time.Time) CreateScheduleInput {
	id := int64(3)
	return CreateScheduleInput{
		VehicleID:      "veh-1",
		Chassis:        " 9bwzzz377vt004251 ",
		DealershipCode: "DN-01",
		ConsultantID:   7,
		CheckupID:      &id,
		ScheduledAt:    at,
	}
}

func TestCreateScheduleValidation(t *testing.T) {
	f := newCheckupFixture()
	ctx := context.Background()

	_, err := f.svc.CreateSchedule(ctx, CreateScheduleInput{})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeMissingFields, e.Code)
	assert.Equal(t, []string{"vehicleId", "chassis", "dealershipCode", "consultantId", "scheduledAt"}, e.Fields)

	in := checkupInput(time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC))
	in.CheckupID = nil
	_, err = f.svc.CreateSchedule(ctx, in)
	assert.True(t, apperr.HasCode(err, apperr.CodeCheckupOrCampaignRequired))

	unknown := int64(99)
	in.CheckupID = &unknown
	_, err = f.svc.CreateSchedule(ctx, in)
	assert.True(t, apperr.HasCode(err, apperr.CodeEntityNotFound))

	assert.Empty(t, f.notifier.types())
}

func TestCreateScheduleRejectsDuplicateFutureSchedule(t *testing.T) {
	f := newCheckupFixture()
	ctx := context.Background()
	future := time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC)

	first, err := f.svc.CreateSchedule(ctx, checkupInput(future))
	require.NoError(t, err)
	assert.Equal(t, testChassis, first.Chassis)
	assert.Equal(t, models.ScheduleTypeCheckup, first.Type)
	assert.Equal(t, models.SchedulePending, first.State)
	assert.False(t, first.HasCampaigns)
	require.NotNil(t, first.ScheduleNumber)

	_, err = f.svc.CreateSchedule(ctx, checkupInput(future.AddDate(0, 0, 7)))
	assert.True(t, apperr.HasCode(err, apperr.CodeCheckupAlreadyScheduled))

	// 不同类型不冲突
	campaign := checkupInput(future)
	campaign.CheckupID = nil
	campaign.CampaignNumbers = []string{"RC-22"}
	c, err := f.svc.CreateSchedule(ctx, campaign)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleTypeCampaign, c.Type)
	assert.True(t, c.HasCampaigns)

	// 拒绝后可重新预约
	_, err = f.svc.Reject(ctx, first.ID)
	require.NoError(t, err)
	_, err = f.svc.CreateSchedule(ctx, checkupInput(future))
	require.NoError(t, err)

	assert.Equal(t, []notify.EventType{
		notify.ScheduleCreated,
		notify.ScheduleCreated,
		notify.ScheduleCancelled,
		notify.ScheduleCreated,
	}, f.notifier.types())
}

func TestScheduleLifecycle(t *testing.T) {
	f := newCheckupFixture()
	ctx := context.Background()

	s, err := f.svc.CreateSchedule(ctx, checkupInput(time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	accepted, err := f.svc.Accept(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleAccepted, accepted.State)

	_, err = f.svc.Accept(ctx, s.ID)
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidScheduleState))

	newDate := time.Date(2026, 11, 5, 14, 0, 0, 0, time.UTC)
	rescheduled, err := f.svc.Reschedule(ctx, s.ID, newDate, 8)
	require.NoError(t, err)
	assert.Equal(t, models.SchedulePending, rescheduled.State)
	assert.Equal(t, int64(8), rescheduled.ConsultantID)

	stored, err := f.svc.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, stored.ScheduledAt.Equal(newDate))

	_, err = f.svc.Reschedule(ctx, s.ID, time.Time{}, 0)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, []string{"scheduledAt", "consultantId"}, e.Fields)

	rejected, err := f.svc.Reject(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleRejected, rejected.State)

	_, err = f.svc.Reject(ctx, s.ID)
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidScheduleState))
	_, err = f.svc.Reschedule(ctx, s.ID, newDate, 8)
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidScheduleState))

	_, err = f.svc.Accept(ctx, 404)
	assert.True(t, apperr.HasCode(err, apperr.CodeNoCheckupScheduleFound))

	list, err := f.svc.ListByChassis(ctx, "9bwzzz377vt004251")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

// racingScheduleStore 读取后状态被其他请求修改
type racingScheduleStore struct {
	*fakeScheduleStore
}

func (r racingScheduleStore) UpdateState(ctx context.Context, id int64, from, to models.ScheduleState) error {
	_ = r.fakeScheduleStore.UpdateState(ctx, id, from, models.ScheduleRejected)
	return r.fakeScheduleStore.UpdateState(ctx, id, from, to)
}

func TestAcceptConcurrentModification(t *testing.T) {
	f := newCheckupFixture()
	ctx := context.Background()
	s, err := f.svc.CreateSchedule(ctx, checkupInput(time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	f.svc.schedules = racingScheduleStore{f.schedules}
	_, err = f.svc.Accept(ctx, s.ID)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeConcurrentModification, e.Code)
	assert.True(t, e.Retryable())
}

func TestGetCheckupViewUsesLiveMetrics(t *testing.T) {
	f := newCheckupFixture()
	f.metrics.metrics = &models.VehicleMetrics{OdometerKm: float(24999)}

	view, err := f.svc.GetCheckupView(context.Background(), models.VehicleParams{
		Chassis:          testChassis,
		MaintenanceGroup: models.GroupRodoviario,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.metrics.calls)
	assert.Equal(t, models.MetricKm, view.MetricType)
	assert.Equal(t, int64(30000), view.Range.Start)
	require.NotNil(t, view.Next)
	assert.Equal(t, int64(30000), view.Next.RangeStart)
	assert.True(t, view.Late)
	assert.Equal(t, checkup.StatusLate, view.Status.Status)
}

func TestGetCheckupViewPrefersRequestMetrics(t *testing.T) {
	f := newCheckupFixture()

	view, err := f.svc.GetCheckupView(context.Background(), models.VehicleParams{
		Chassis:          testChassis,
		MaintenanceGroup: models.GroupRodoviario,
		Metrics:          models.VehicleMetrics{OdometerKm: float(21000)},
	})
	require.NoError(t, err)
	assert.Zero(t, f.metrics.calls)
	assert.Equal(t, int64(20000), view.Range.Start)
}

func TestGetCheckupViewUsesRevisionHistory(t *testing.T) {
	f := newCheckupFixture()
	f.revisions.revisions = []models.Revision{
		{Mileage: float(12000), RevisionDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Mileage: float(24999), RevisionDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	view, err := f.svc.GetCheckupView(context.Background(), models.VehicleParams{
		Chassis:          testChassis,
		MaintenanceGroup: models.GroupRodoviario,
	})
	require.NoError(t, err)
	require.NotNil(t, view.Next)
	assert.Equal(t, int64(30000), view.Next.RangeStart)
}

func TestGetCheckupViewDegradesWhenTelemetryFails(t *testing.T) {
	for name, metrics := range map[string]*fakeMetrics{
		"error":   {err: errors.New("telemetry down")},
		"timeout": {block: true},
	} {
		t.Run(name, func(t *testing.T) {
			f := newCheckupFixture()
			f.svc.metrics = metrics
			f.revisions.err = errors.New("odp down")

			view, err := f.svc.GetCheckupView(context.Background(), models.VehicleParams{
				Chassis:          testChassis,
				MaintenanceGroup: models.GroupRodoviario,
			})
			require.NoError(t, err)
			assert.Nil(t, view.Next)
			assert.Zero(t, view.Range.Start)
			assert.False(t, view.Late)
			assert.Equal(t, checkup.StatusNotScheduled, view.Status.Status)
		})
	}
}

func TestGetCheckupViewShowsPendingSchedule(t *testing.T) {
	f := newCheckupFixture()
	ctx := context.Background()
	at := time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC)
	_, err := f.svc.CreateSchedule(ctx, checkupInput(at))
	require.NoError(t, err)

	view, err := f.svc.GetCheckupView(ctx, models.VehicleParams{
		Chassis:          testChassis,
		MaintenanceGroup: models.GroupRodoviario,
		Metrics:          models.VehicleMetrics{OdometerKm: float(27000)},
	})
	require.NoError(t, err)
	assert.Equal(t, checkup.StatusScheduled, view.Status.Status)
	require.NotNil(t, view.Status.ScheduleDate)
	assert.True(t, view.Status.ScheduleDate.Equal(at))

	_, err = f.svc.GetCheckupView(ctx, models.VehicleParams{})
	assert.True(t, apperr.HasCode(err, apperr.CodeMissingFields))
}
