package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/langchou/fleetcare/internal/models"
)

// ServiceBayRepository 工位及工位预留仓库
type ServiceBayRepository struct {
	db *DB
}

// NewServiceBayRepository 创建工位仓库
func NewServiceBayRepository(db *DB) *ServiceBayRepository {
	return &ServiceBayRepository{db: db}
}

// CreateBay 创建工位
func (r *ServiceBayRepository) CreateBay(ctx context.Context, b *models.ServiceBay) error {
	query := `
		INSERT INTO service_bays (name, dn, active)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	if err := r.db.Pool.QueryRow(ctx, query, b.Name, b.DN, b.Active).Scan(&b.ID); err != nil {
		return fmt.Errorf("insert service bay: %w", err)
	}
	return nil
}

// GetBay 获取工位
func (r *ServiceBayRepository) GetBay(ctx context.Context, id int64) (*models.ServiceBay, error) {
	b := &models.ServiceBay{}
	err := r.db.Pool.QueryRow(ctx, `SELECT id, name, dn, active FROM service_bays WHERE id = $1`, id).
		Scan(&b.ID, &b.Name, &b.DN, &b.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get service bay: %w", err)
	}
	return b, nil
}

const bayScheduleColumns = `id, service_bay_id, occurrence_id, start_date, end_date, active, dn, created_at`

func scanBaySchedule(row pgx.Row) (*models.ServiceBaySchedule, error) {
	s := &models.ServiceBaySchedule{}
	err := row.Scan(
		&s.ID,
		&s.ServiceBayID,
		&s.OccurrenceID,
		&s.StartDate,
		&s.EndDate,
		&s.Active,
		&s.DN,
		&s.CreatedAt,
	)
	return s, err
}

// hasConflict 与该工位有效预留区间重叠
// excludeID 用于忽略自身
func hasConflict(ctx context.Context, q querier, bayID int64, start, end time.Time, excludeID int64) (bool, error) {
	var conflict bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM service_bay_schedules
			WHERE service_bay_id = $1 AND active AND id <> $4
				AND NOT (end_date <= $2 OR start_date >= $3)
		)
	`, bayID, start, end, excludeID).Scan(&conflict)
	if err != nil {
		return false, fmt.Errorf("check service bay conflict: %w", err)
	}
	return conflict, nil
}

// HasConflict 检查区间 [start, end) 是否与工位的有效预留冲突
func (r *ServiceBayRepository) HasConflict(ctx context.Context, bayID int64, start, end time.Time) (bool, error) {
	return hasConflict(ctx, r.db.Pool, bayID, start, end, 0)
}

// Book 预留工位
// 锁住工位行后检查冲突并写入；排他约束兜底，冲突时返回 ErrConflict
func (r *ServiceBayRepository) Book(ctx context.Context, s *models.ServiceBaySchedule) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var active bool
		err := tx.QueryRow(ctx, `SELECT active FROM service_bays WHERE id = $1 FOR UPDATE`, s.ServiceBayID).Scan(&active)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock service bay: %w", err)
		}
		if !active {
			return fmt.Errorf("service bay %d inactive: %w", s.ServiceBayID, ErrNotFound)
		}

		conflict, err := hasConflict(ctx, tx, s.ServiceBayID, s.StartDate, s.EndDate, 0)
		if err != nil {
			return err
		}
		if conflict {
			return ErrConflict
		}

		query := `
			INSERT INTO service_bay_schedules (service_bay_id, occurrence_id, start_date, end_date, active, dn, created_at)
			VALUES ($1, $2, $3, $4, TRUE, $5, $6)
			RETURNING id
		`
		now := time.Now()
		err = tx.QueryRow(ctx, query, s.ServiceBayID, s.OccurrenceID, s.StartDate, s.EndDate, s.DN, now).Scan(&s.ID)
		if isExclusionViolation(err) {
			return ErrConflict
		}
		if err != nil {
			return fmt.Errorf("insert service bay schedule: %w", err)
		}

		s.Active = true
		s.CreatedAt = now
		return nil
	})
}

// Cancel 取消预留（置为无效），重复取消不报错
func (r *ServiceBayRepository) Cancel(ctx context.Context, id int64) (*models.ServiceBaySchedule, error) {
	s, err := scanBaySchedule(r.db.Pool.QueryRow(ctx, `
		UPDATE service_bay_schedules SET active = FALSE
		WHERE id = $1
		RETURNING `+bayScheduleColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cancel service bay schedule: %w", err)
	}
	return s, nil
}

// GetSchedule 获取预留
func (r *ServiceBayRepository) GetSchedule(ctx context.Context, id int64) (*models.ServiceBaySchedule, error) {
	s, err := scanBaySchedule(r.db.Pool.QueryRow(ctx, `SELECT `+bayScheduleColumns+` FROM service_bay_schedules WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get service bay schedule: %w", err)
	}
	return s, nil
}

// ListByBay 工位的预留，按开始时间排序
func (r *ServiceBayRepository) ListByBay(ctx context.Context, bayID int64, activeOnly bool) ([]models.ServiceBaySchedule, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+bayScheduleColumns+`
		FROM service_bay_schedules
		WHERE service_bay_id = $1 AND (NOT $2 OR active)
		ORDER BY start_date
	`, bayID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list service bay schedules: %w", err)
	}
	defer rows.Close()

	schedules := []models.ServiceBaySchedule{}
	for rows.Next() {
		s, err := scanBaySchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service bay schedule: %w", err)
		}
		schedules = append(schedules, *s)
	}
	return schedules, rows.Err()
}
