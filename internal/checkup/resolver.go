package checkup

import (
	"context"
	"sort"
	"sync"

	"github.com/langchou/fleetcare/internal/chassis"
	"github.com/langchou/fleetcare/internal/models"
	"go.uber.org/zap"
)

// EngineStore 发动机型号表
// 找不到记录时返回 (nil, nil)
type EngineStore interface {
	FindEngine(ctx context.Context, digits4To5, digit6, digits7To8 string) (*models.EngineMetadata, error)
}

// IntervalStore 保养间隔表
// 找不到记录时返回 (nil, nil)
type IntervalStore interface {
	FindExactInterval(ctx context.Context, group models.MaintenanceGroup, engine *models.EngineMetadata) (*models.CheckupInterval, error)
	ListIntervals(ctx context.Context, group models.MaintenanceGroup, emissionStandard *string) ([]models.CheckupInterval, error)
}

// EngineResolver 车架号 → 发动机元数据，带缓存
type EngineResolver struct {
	store     EngineStore
	logger    *zap.Logger
	cacheSize int

	// 缓存：未命中也缓存（nil）
	cache   map[string]*models.EngineMetadata
	cacheMu sync.RWMutex
}

// NewEngineResolver 创建发动机元数据解析器
func NewEngineResolver(store EngineStore, cacheSize int, logger *zap.Logger) *EngineResolver {
	if cacheSize <= 0 {
		cacheSize = DefaultConfig().EngineCacheSize
	}
	return &EngineResolver{
		store:     store,
		logger:    logger,
		cacheSize: cacheSize,
		cache:     make(map[string]*models.EngineMetadata),
	}
}

// Resolve 解析车架号对应的发动机元数据
// 车架号不合法、型号表无记录或查询失败都返回 nil
func (r *EngineResolver) Resolve(ctx context.Context, chassisNumber string) *models.EngineMetadata {
	fragments, ok := chassis.Decode(chassisNumber)
	if !ok {
		r.logger.Debug("Chassis does not match pattern", zap.String("chassis", chassisNumber))
		return nil
	}

	key := fragments.Key()

	r.cacheMu.RLock()
	if engine, ok := r.cache[key]; ok {
		r.cacheMu.RUnlock()
		return engine
	}
	r.cacheMu.RUnlock()

	engine, err := r.store.FindEngine(ctx, fragments.Digits4To5, fragments.Digit6, fragments.Digits7To8)
	if err != nil {
		// 查询失败不缓存
		r.logger.Warn("Failed to resolve engine metadata",
			zap.String("chassis", chassisNumber),
			zap.Error(err))
		return nil
	}

	r.cacheMu.Lock()
	r.cache[key] = engine
	if len(r.cache) > r.cacheSize {
		r.cache = make(map[string]*models.EngineMetadata)
		r.cache[key] = engine
	}
	r.cacheMu.Unlock()

	return engine
}

// IntervalResolver 解析车辆适用的保养间隔
type IntervalResolver struct {
	engines *EngineResolver
	store   IntervalStore
	logger  *zap.Logger
}

// NewIntervalResolver 创建保养间隔解析器
func NewIntervalResolver(engines *EngineResolver, store IntervalStore, logger *zap.Logger) *IntervalResolver {
	return &IntervalResolver{
		engines: engines,
		store:   store,
		logger:  logger,
	}
}

// Resolve 按 精确匹配 → 排放标准默认 → 分组默认 的顺序解析间隔
func (r *IntervalResolver) Resolve(ctx context.Context, chassisNumber string, group models.MaintenanceGroup) (int64, bool) {
	if !group.Valid() {
		return 0, false
	}

	engine := r.engines.Resolve(ctx, chassisNumber)

	if engine != nil {
		exact, err := r.store.FindExactInterval(ctx, group, engine)
		if err != nil {
			r.logger.Warn("Failed to find exact interval",
				zap.String("chassis", chassisNumber),
				zap.String("group", string(group)),
				zap.Error(err))
		} else if exact != nil {
			if v := exact.MetricValue(); v > 0 {
				return v, true
			}
		}

		if engine.EmissionStandard != "" {
			emission := engine.EmissionStandard
			if v, ok := r.smallest(ctx, group, &emission); ok {
				return v, true
			}
		}
	}

	return r.smallest(ctx, group, nil)
}

// smallest 按里程升序取第一个计量值非零的间隔
func (r *IntervalResolver) smallest(ctx context.Context, group models.MaintenanceGroup, emission *string) (int64, bool) {
	rows, err := r.store.ListIntervals(ctx, group, emission)
	if err != nil {
		r.logger.Warn("Failed to list intervals",
			zap.String("group", string(group)),
			zap.Error(err))
		return 0, false
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Km < rows[j].Km
	})

	for _, row := range rows {
		if v := row.MetricValue(); v > 0 {
			return v, true
		}
	}
	return 0, false
}
