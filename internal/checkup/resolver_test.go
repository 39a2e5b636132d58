package checkup

import (
	"context"
	"errors"
	"testing"

	"github.com/langchou/fleetcare/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeEngineStore struct {
	findFn func(ctx context.Context, d45, d6, d78 string) (*models.EngineMetadata, error)
	calls  int
}

func (f *fakeEngineStore) FindEngine(ctx context.Context, d45, d6, d78 string) (*models.EngineMetadata, error) {
	f.calls++
	if f.findFn == nil {
		return nil, nil
	}
	return f.findFn(ctx, d45, d6, d78)
}

type fakeIntervalStore struct {
	exactFn func(ctx context.Context, group models.MaintenanceGroup, engine *models.EngineMetadata) (*models.CheckupInterval, error)
	listFn  func(ctx context.Context, group models.MaintenanceGroup, emission *string) ([]models.CheckupInterval, error)
}

func (f fakeIntervalStore) FindExactInterval(ctx context.Context, group models.MaintenanceGroup, engine *models.EngineMetadata) (*models.CheckupInterval, error) {
	if f.exactFn == nil {
		return nil, nil
	}
	return f.exactFn(ctx, group, engine)
}

func (f fakeIntervalStore) ListIntervals(ctx context.Context, group models.MaintenanceGroup, emission *string) ([]models.CheckupInterval, error) {
	if f.listFn == nil {
		return nil, nil
	}
	return f.listFn(ctx, group, emission)
}

const testChassis = "9BWZZZ377VT004251"

var euro5 = &models.EngineMetadata{EngineCode: "OM926", EmissionStandard: "EURO5", DisplacementCC: 7200}

func knownEngine(ctx context.Context, d45, d6, d78 string) (*models.EngineMetadata, error) {
	if d45 == "ZZ" && d6 == "Z" && d78 == "37" {
		return euro5, nil
	}
	return nil, nil
}

func TestEngineResolverDecodesChassis(t *testing.T) {
	store := &fakeEngineStore{findFn: knownEngine}
	r := NewEngineResolver(store, 10, zap.NewNop())

	engine := r.Resolve(context.Background(), " 9bwzzz377vt004251 ")
	require.NotNil(t, engine)
	assert.Equal(t, "OM926", engine.EngineCode)

	assert.Nil(t, r.Resolve(context.Background(), "NOT-A-CHASSIS"))
	assert.Equal(t, 1, store.calls)
}

func TestEngineResolverCachesHitsAndMisses(t *testing.T) {
	store := &fakeEngineStore{findFn: knownEngine}
	r := NewEngineResolver(store, 10, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.NotNil(t, r.Resolve(ctx, testChassis))
		assert.Nil(t, r.Resolve(ctx, "9BWAB1227VT004251"))
	}
	assert.Equal(t, 2, store.calls)
}

func TestEngineResolverDoesNotCacheErrors(t *testing.T) {
	store := &fakeEngineStore{findFn: func(ctx context.Context, d45, d6, d78 string) (*models.EngineMetadata, error) {
		return nil, errors.New("connection reset")
	}}
	r := NewEngineResolver(store, 10, zap.NewNop())

	assert.Nil(t, r.Resolve(context.Background(), testChassis))
	assert.Nil(t, r.Resolve(context.Background(), testChassis))
	assert.Equal(t, 2, store.calls)
}

func TestIntervalResolverOrder(t *testing.T) {
	ctx := context.Background()
	emissionRows := []models.CheckupInterval{
		{MaintenanceGroup: models.GroupRodoviario, Km: 40000},
		{MaintenanceGroup: models.GroupRodoviario, Km: 0},
		{MaintenanceGroup: models.GroupRodoviario, Km: 20000},
	}
	groupRows := []models.CheckupInterval{
		{MaintenanceGroup: models.GroupRodoviario, Km: 15000},
		{MaintenanceGroup: models.GroupRodoviario, Km: 10000},
	}
	list := func(ctx context.Context, group models.MaintenanceGroup, emission *string) ([]models.CheckupInterval, error) {
		if emission != nil {
			return append([]models.CheckupInterval(nil), emissionRows...), nil
		}
		return append([]models.CheckupInterval(nil), groupRows...), nil
	}

	t.Run("exact match", func(t *testing.T) {
		store := fakeIntervalStore{
			exactFn: func(ctx context.Context, group models.MaintenanceGroup, engine *models.EngineMetadata) (*models.CheckupInterval, error) {
				assert.Equal(t, euro5, engine)
				return &models.CheckupInterval{MaintenanceGroup: group, Km: 30000}, nil
			},
			listFn: list,
		}
		r := NewIntervalResolver(NewEngineResolver(&fakeEngineStore{findFn: knownEngine}, 10, zap.NewNop()), store, zap.NewNop())
		v, ok := r.Resolve(ctx, testChassis, models.GroupRodoviario)
		assert.True(t, ok)
		assert.Equal(t, int64(30000), v)
	})

	t.Run("emission standard default", func(t *testing.T) {
		store := fakeIntervalStore{listFn: list}
		r := NewIntervalResolver(NewEngineResolver(&fakeEngineStore{findFn: knownEngine}, 10, zap.NewNop()), store, zap.NewNop())
		v, ok := r.Resolve(ctx, testChassis, models.GroupRodoviario)
		assert.True(t, ok)
		assert.Equal(t, int64(20000), v)
	})

	t.Run("zero exact row falls through", func(t *testing.T) {
		store := fakeIntervalStore{
			exactFn: func(ctx context.Context, group models.MaintenanceGroup, engine *models.EngineMetadata) (*models.CheckupInterval, error) {
				return &models.CheckupInterval{MaintenanceGroup: group}, nil
			},
			listFn: list,
		}
		r := NewIntervalResolver(NewEngineResolver(&fakeEngineStore{findFn: knownEngine}, 10, zap.NewNop()), store, zap.NewNop())
		v, _ := r.Resolve(ctx, testChassis, models.GroupRodoviario)
		assert.Equal(t, int64(20000), v)
	})

	t.Run("group default without engine", func(t *testing.T) {
		store := fakeIntervalStore{listFn: list}
		r := NewIntervalResolver(NewEngineResolver(&fakeEngineStore{}, 10, zap.NewNop()), store, zap.NewNop())
		v, ok := r.Resolve(ctx, testChassis, models.GroupRodoviario)
		assert.True(t, ok)
		assert.Equal(t, int64(10000), v)
	})

	t.Run("group default when emission has no rows", func(t *testing.T) {
		store := fakeIntervalStore{listFn: func(ctx context.Context, group models.MaintenanceGroup, emission *string) ([]models.CheckupInterval, error) {
			if emission != nil {
				return nil, nil
			}
			return groupRows, nil
		}}
		r := NewIntervalResolver(NewEngineResolver(&fakeEngineStore{findFn: knownEngine}, 10, zap.NewNop()), store, zap.NewNop())
		v, ok := r.Resolve(ctx, testChassis, models.GroupRodoviario)
		assert.True(t, ok)
		assert.Equal(t, int64(10000), v)
	})

	t.Run("invalid group", func(t *testing.T) {
		r := NewIntervalResolver(NewEngineResolver(&fakeEngineStore{}, 10, zap.NewNop()), fakeIntervalStore{listFn: list}, zap.NewNop())
		_, ok := r.Resolve(ctx, testChassis, "")
		assert.False(t, ok)
	})
}

func TestIntervalResolverHoursGroup(t *testing.T) {
	store := fakeIntervalStore{listFn: func(ctx context.Context, group models.MaintenanceGroup, emission *string) ([]models.CheckupInterval, error) {
		return []models.CheckupInterval{
			{MaintenanceGroup: models.GroupEspecial, Km: 0, Hours: 0},
			{MaintenanceGroup: models.GroupEspecial, Km: 0, Hours: 500},
		}, nil
	}}
	r := NewIntervalResolver(NewEngineResolver(&fakeEngineStore{}, 10, zap.NewNop()), store, zap.NewNop())

	v, ok := r.Resolve(context.Background(), testChassis, models.GroupEspecial)
	assert.True(t, ok)
	assert.Equal(t, int64(500), v)
}

func TestIntervalResolverErrorsAreMisses(t *testing.T) {
	store := fakeIntervalStore{
		exactFn: func(ctx context.Context, group models.MaintenanceGroup, engine *models.EngineMetadata) (*models.CheckupInterval, error) {
			return nil, errors.New("timeout")
		},
		listFn: func(ctx context.Context, group models.MaintenanceGroup, emission *string) ([]models.CheckupInterval, error) {
			return nil, errors.New("timeout")
		},
	}
	r := NewIntervalResolver(NewEngineResolver(&fakeEngineStore{findFn: knownEngine}, 10, zap.NewNop()), store, zap.NewNop())

	_, ok := r.Resolve(context.Background(), testChassis, models.GroupRodoviario)
	assert.False(t, ok)
}

func TestIntervalResolverIsIdempotent(t *testing.T) {
	store := fakeIntervalStore{listFn: func(ctx context.Context, group models.MaintenanceGroup, emission *string) ([]models.CheckupInterval, error) {
		return []models.CheckupInterval{{MaintenanceGroup: group, Km: 12500.9}}, nil
	}}
	r := NewIntervalResolver(NewEngineResolver(&fakeEngineStore{findFn: knownEngine}, 10, zap.NewNop()), store, zap.NewNop())

	first, _ := r.Resolve(context.Background(), testChassis, models.GroupSevero)
	for i := 0; i < 5; i++ {
		v, ok := r.Resolve(context.Background(), testChassis, models.GroupSevero)
		assert.True(t, ok)
		assert.Equal(t, first, v)
	}
	assert.Equal(t, int64(12500), first)
}
