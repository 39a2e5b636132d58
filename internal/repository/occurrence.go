package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/langchou/fleetcare/internal/models"
)

// OccurrenceRepository 事件及事件步骤仓库
type OccurrenceRepository struct {
	db *DB
}

// NewOccurrenceRepository 创建事件仓库
func NewOccurrenceRepository(db *DB) *OccurrenceRepository {
	return &OccurrenceRepository{db: db}
}

const stepTypeColumns = `id, code, name, position, hours_elapsed`

func scanStepType(row pgx.Row) (*models.OccurrenceStepType, error) {
	st := &models.OccurrenceStepType{}
	err := row.Scan(&st.ID, &st.Code, &st.Name, &st.Position, &st.HoursElapsed)
	return st, err
}

// CreateStepType 新增步骤类型，编码重复时返回 ErrDuplicate
func (r *OccurrenceRepository) CreateStepType(ctx context.Context, st *models.OccurrenceStepType) error {
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO occurrence_step_types (code, name, position, hours_elapsed)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, st.Code, st.Name, st.Position, st.HoursElapsed).Scan(&st.ID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert step type: %w", err)
	}
	return nil
}

// ListStepTypes 全部步骤类型，按顺序
func (r *OccurrenceRepository) ListStepTypes(ctx context.Context) ([]models.OccurrenceStepType, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+stepTypeColumns+` FROM occurrence_step_types ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("list step types: %w", err)
	}
	defer rows.Close()

	types := []models.OccurrenceStepType{}
	for rows.Next() {
		st, err := scanStepType(rows)
		if err != nil {
			return nil, fmt.Errorf("scan step type: %w", err)
		}
		types = append(types, *st)
	}
	return types, rows.Err()
}

// Create 创建事件并打开第一个步骤
func (r *OccurrenceRepository) Create(ctx context.Context, o *models.Occurrence) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		first, err := scanStepType(tx.QueryRow(ctx, `SELECT `+stepTypeColumns+` FROM occurrence_step_types ORDER BY position, id LIMIT 1`))
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("no step types configured: %w", ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("find first step type: %w", err)
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO occurrences (uuid, chassis, description, start_date)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, o.UUID, o.Chassis, o.Description, o.StartDate).Scan(&o.ID)
		if err != nil {
			return fmt.Errorf("insert occurrence: %w", err)
		}

		step := models.OccurrenceStep{OccurrenceID: o.ID, StepType: *first, DtStart: o.StartDate, Latest: true}
		if err := insertStep(ctx, tx, &step); err != nil {
			return err
		}
		o.Steps = []models.OccurrenceStep{step}
		return nil
	})
}

func insertStep(ctx context.Context, q querier, step *models.OccurrenceStep) error {
	err := q.QueryRow(ctx, `
		INSERT INTO occurrence_steps (occurrence_id, step_type_id, dt_start, latest)
		VALUES ($1, $2, $3, TRUE)
		RETURNING id
	`, step.OccurrenceID, step.StepType.ID, step.DtStart).Scan(&step.ID)
	if err != nil {
		return fmt.Errorf("insert occurrence step: %w", err)
	}
	step.Latest = true
	return nil
}

// lockOccurrence 锁定事件行
func lockOccurrence(ctx context.Context, tx pgx.Tx, uuid string) (int64, *time.Time, error) {
	var (
		id      int64
		endDate *time.Time
	)
	err := tx.QueryRow(ctx, `SELECT id, end_date FROM occurrences WHERE uuid = $1 FOR UPDATE`, uuid).Scan(&id, &endDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, ErrNotFound
	}
	if err != nil {
		return 0, nil, fmt.Errorf("lock occurrence: %w", err)
	}
	return id, endDate, nil
}

// ChangeStep 关闭当前步骤并打开目标步骤，两步在同一事务内完成
// 目标即当前进行中的步骤时不做修改，返回 changed=false
func (r *OccurrenceRepository) ChangeStep(ctx context.Context, uuid, stepCode string, now time.Time) (bool, error) {
	changed := false
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		occurrenceID, endDate, err := lockOccurrence(ctx, tx, uuid)
		if err != nil {
			return err
		}
		if endDate != nil {
			return ErrFinalized
		}

		target, err := scanStepType(tx.QueryRow(ctx, `SELECT `+stepTypeColumns+` FROM occurrence_step_types WHERE code = $1`, stepCode))
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("step type %s: %w", stepCode, ErrUnknownStepType)
		}
		if err != nil {
			return fmt.Errorf("find step type: %w", err)
		}

		var (
			currentType int64
			currentEnd  *time.Time
		)
		err = tx.QueryRow(ctx, `
			SELECT step_type_id, dt_end FROM occurrence_steps
			WHERE occurrence_id = $1 AND latest
		`, occurrenceID).Scan(&currentType, &currentEnd)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return fmt.Errorf("find latest step: %w", err)
		case currentType == target.ID && currentEnd == nil:
			return nil
		}

		if _, err := tx.Exec(ctx, `
			UPDATE occurrence_steps SET latest = FALSE, dt_end = COALESCE(dt_end, $2)
			WHERE occurrence_id = $1 AND latest
		`, occurrenceID, now); err != nil {
			return fmt.Errorf("close latest step: %w", err)
		}

		step := models.OccurrenceStep{OccurrenceID: occurrenceID, StepType: *target, DtStart: now}
		if err := insertStep(ctx, tx, &step); err != nil {
			return err
		}
		changed = true
		return nil
	})
	return changed, err
}

// Finalize 结束事件并关闭进行中的步骤
func (r *OccurrenceRepository) Finalize(ctx context.Context, uuid string, now time.Time) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		occurrenceID, endDate, err := lockOccurrence(ctx, tx, uuid)
		if err != nil {
			return err
		}
		if endDate != nil {
			return ErrFinalized
		}

		if _, err := tx.Exec(ctx, `UPDATE occurrences SET end_date = $2 WHERE id = $1`, occurrenceID, now); err != nil {
			return fmt.Errorf("finalize occurrence: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE occurrence_steps SET dt_end = $2
			WHERE occurrence_id = $1 AND latest AND dt_end IS NULL
		`, occurrenceID, now); err != nil {
			return fmt.Errorf("close open step: %w", err)
		}
		return nil
	})
}

const occurrenceStepSelect = `
	SELECT s.id, s.occurrence_id, s.dt_start, s.dt_end, s.latest,
		t.id, t.code, t.name, t.position, t.hours_elapsed
	FROM occurrence_steps s
	JOIN occurrence_step_types t ON t.id = s.step_type_id
`

func scanStep(row pgx.Row) (*models.OccurrenceStep, error) {
	s := &models.OccurrenceStep{}
	err := row.Scan(
		&s.ID,
		&s.OccurrenceID,
		&s.DtStart,
		&s.DtEnd,
		&s.Latest,
		&s.StepType.ID,
		&s.StepType.Code,
		&s.StepType.Name,
		&s.StepType.Position,
		&s.StepType.HoursElapsed,
	)
	return s, err
}

// GetByUUID 获取事件及全部步骤
func (r *OccurrenceRepository) GetByUUID(ctx context.Context, uuid string) (*models.Occurrence, error) {
	o := &models.Occurrence{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, uuid::text, chassis, description, start_date, end_date
		FROM occurrences WHERE uuid = $1
	`, uuid).Scan(&o.ID, &o.UUID, &o.Chassis, &o.Description, &o.StartDate, &o.EndDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get occurrence: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx, occurrenceStepSelect+` WHERE s.occurrence_id = $1 ORDER BY s.dt_start, s.id`, o.ID)
	if err != nil {
		return nil, fmt.Errorf("list occurrence steps: %w", err)
	}
	defer rows.Close()

	o.Steps = []models.OccurrenceStep{}
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("scan occurrence step: %w", err)
		}
		o.Steps = append(o.Steps, *s)
	}
	return o, rows.Err()
}

// ListOpen 未结束的事件及其当前步骤
func (r *OccurrenceRepository) ListOpen(ctx context.Context) ([]models.Occurrence, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT o.id, o.uuid::text, o.chassis, o.description, o.start_date,
			s.id, s.occurrence_id, s.dt_start, s.dt_end, s.latest,
			t.id, t.code, t.name, t.position, t.hours_elapsed
		FROM occurrences o
		JOIN occurrence_steps s ON s.occurrence_id = o.id AND s.latest AND s.dt_end IS NULL
		JOIN occurrence_step_types t ON t.id = s.step_type_id
		WHERE o.end_date IS NULL
		ORDER BY o.start_date
	`)
	if err != nil {
		return nil, fmt.Errorf("list open occurrences: %w", err)
	}
	defer rows.Close()

	occurrences := []models.Occurrence{}
	for rows.Next() {
		var (
			o models.Occurrence
			s models.OccurrenceStep
		)
		err := rows.Scan(
			&o.ID, &o.UUID, &o.Chassis, &o.Description, &o.StartDate,
			&s.ID, &s.OccurrenceID, &s.DtStart, &s.DtEnd, &s.Latest,
			&s.StepType.ID, &s.StepType.Code, &s.StepType.Name, &s.StepType.Position, &s.StepType.HoursElapsed,
		)
		if err != nil {
			return nil, fmt.Errorf("scan open occurrence: %w", err)
		}
		o.Steps = []models.OccurrenceStep{s}
		occurrences = append(occurrences, o)
	}
	return occurrences, rows.Err()
}
