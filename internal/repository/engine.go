package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/langchou/fleetcare/internal/models"
)

// EngineRepository 发动机型号与保养间隔表
type EngineRepository struct {
	db *DB
}

// NewEngineRepository 创建发动机仓库
func NewEngineRepository(db *DB) *EngineRepository {
	return &EngineRepository{db: db}
}

// FindEngine 按车架号片段查找发动机，找不到返回 (nil, nil)
func (r *EngineRepository) FindEngine(ctx context.Context, digits4To5, digit6, digits7To8 string) (*models.EngineMetadata, error) {
	query := `
		SELECT engine_code, emission_standard, displacement_cc
		FROM engine_models
		WHERE digits_4_5 = $1 AND digit_6 = $2 AND digits_7_8 = $3
	`
	engine := &models.EngineMetadata{}
	err := r.db.Pool.QueryRow(ctx, query, digits4To5, digit6, digits7To8).Scan(
		&engine.EngineCode,
		&engine.EmissionStandard,
		&engine.DisplacementCC,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find engine: %w", err)
	}
	return engine, nil
}

// UpsertEngine 写入发动机型号
func (r *EngineRepository) UpsertEngine(ctx context.Context, digits4To5, digit6, digits7To8 string, engine models.EngineMetadata) error {
	query := `
		INSERT INTO engine_models (digits_4_5, digit_6, digits_7_8, engine_code, emission_standard, displacement_cc)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (digits_4_5, digit_6, digits_7_8) DO UPDATE SET
			engine_code = EXCLUDED.engine_code,
			emission_standard = EXCLUDED.emission_standard,
			displacement_cc = EXCLUDED.displacement_cc
	`
	_, err := r.db.Pool.Exec(ctx, query,
		digits4To5, digit6, digits7To8,
		engine.EngineCode, engine.EmissionStandard, engine.DisplacementCC,
	)
	if err != nil {
		return fmt.Errorf("upsert engine: %w", err)
	}
	return nil
}

const intervalColumns = `id, maintenance_group, engine_code, emission_standard, displacement_cc, km, hours`

func scanInterval(row pgx.Row) (*models.CheckupInterval, error) {
	i := &models.CheckupInterval{}
	err := row.Scan(
		&i.ID,
		&i.MaintenanceGroup,
		&i.EngineCode,
		&i.EmissionStandard,
		&i.DisplacementCC,
		&i.Km,
		&i.Hours,
	)
	return i, err
}

// FindExactInterval 按 (分组, 发动机, 排放标准, 排量) 精确查找，找不到返回 (nil, nil)
func (r *EngineRepository) FindExactInterval(ctx context.Context, group models.MaintenanceGroup, engine *models.EngineMetadata) (*models.CheckupInterval, error) {
	query := `
		SELECT ` + intervalColumns + `
		FROM checkup_intervals
		WHERE maintenance_group = $1 AND engine_code = $2 AND emission_standard = $3 AND displacement_cc = $4
		ORDER BY km, hours
		LIMIT 1
	`
	i, err := scanInterval(r.db.Pool.QueryRow(ctx, query,
		group, engine.EngineCode, engine.EmissionStandard, engine.DisplacementCC,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find exact interval: %w", err)
	}
	return i, nil
}

// ListIntervals 按分组（和排放标准）列出间隔，按里程升序
func (r *EngineRepository) ListIntervals(ctx context.Context, group models.MaintenanceGroup, emissionStandard *string) ([]models.CheckupInterval, error) {
	query := `
		SELECT ` + intervalColumns + `
		FROM checkup_intervals
		WHERE maintenance_group = $1 AND ($2::text IS NULL OR emission_standard = $2)
		ORDER BY km, hours
	`
	rows, err := r.db.Pool.Query(ctx, query, group, emissionStandard)
	if err != nil {
		return nil, fmt.Errorf("list intervals: %w", err)
	}
	defer rows.Close()

	var intervals []models.CheckupInterval
	for rows.Next() {
		i, err := scanInterval(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interval: %w", err)
		}
		intervals = append(intervals, *i)
	}
	return intervals, rows.Err()
}

// CreateInterval 新增间隔记录
func (r *EngineRepository) CreateInterval(ctx context.Context, i *models.CheckupInterval) error {
	query := `
		INSERT INTO checkup_intervals (maintenance_group, engine_code, emission_standard, displacement_cc, km, hours)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := r.db.Pool.QueryRow(ctx, query,
		i.MaintenanceGroup, i.EngineCode, i.EmissionStandard, i.DisplacementCC, i.Km, i.Hours,
	).Scan(&i.ID)
	if err != nil {
		return fmt.Errorf("insert interval: %w", err)
	}
	return nil
}
