package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/langchou/fleetcare/internal/models"
)

// TicketRepository 维修工单仓库
type TicketRepository struct {
	db *DB
}

// NewTicketRepository 创建工单仓库
func NewTicketRepository(db *DB) *TicketRepository {
	return &TicketRepository{db: db}
}

const ticketSelect = `
	SELECT id, schedule_id, status, version, ticket_step, screening_step, repair_step,
		inspection_step, release_step, created_at, updated_at
	FROM maintenance_tickets
`

func scanTicket(row pgx.Row) (*models.MaintenanceTicket, error) {
	t := &models.MaintenanceTicket{}
	err := row.Scan(
		&t.ID,
		&t.ScheduleID,
		&t.Status,
		&t.Version,
		&t.Ticket,
		&t.Screening,
		&t.Repair,
		&t.Inspection,
		&t.Release,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	return t, err
}

// Create 创建工单并写入预约镜像
// 同一预约已存在工单时返回 ErrDuplicate
func (r *TicketRepository) Create(ctx context.Context, t *models.MaintenanceTicket) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		now := time.Now()
		query := `
			INSERT INTO maintenance_tickets (schedule_id, status, version, ticket_step, created_at, updated_at)
			VALUES ($1, $2, 1, $3, $4, $5)
			RETURNING id, version
		`
		err := tx.QueryRow(ctx, query, t.ScheduleID, t.Status, t.Ticket, now, now).Scan(&t.ID, &t.Version)
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		if err != nil {
			return fmt.Errorf("insert ticket: %w", err)
		}

		if err := updateMaintenance(ctx, tx, t.ScheduleID, t.Mirror()); err != nil {
			return err
		}

		t.CreatedAt = now
		t.UpdatedAt = now
		return nil
	})
}

// GetByID 获取工单
func (r *TicketRepository) GetByID(ctx context.Context, id int64) (*models.MaintenanceTicket, error) {
	t, err := scanTicket(r.db.Pool.QueryRow(ctx, ticketSelect+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket by id: %w", err)
	}
	return t, nil
}

// GetByScheduleID 获取预约对应的工单
func (r *TicketRepository) GetByScheduleID(ctx context.Context, scheduleID int64) (*models.MaintenanceTicket, error) {
	t, err := scanTicket(r.db.Pool.QueryRow(ctx, ticketSelect+` WHERE schedule_id = $1`, scheduleID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket by schedule: %w", err)
	}
	return t, nil
}

// Update 按版本号条件更新工单（乐观锁），并在同一事务内写入预约镜像
// 版本号不一致时返回 ErrStaleVersion
func (r *TicketRepository) Update(ctx context.Context, t *models.MaintenanceTicket) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE maintenance_tickets SET
				status = $3,
				version = version + 1,
				ticket_step = $4,
				screening_step = $5,
				repair_step = $6,
				inspection_step = $7,
				release_step = $8,
				updated_at = NOW()
			WHERE id = $1 AND version = $2
			RETURNING version, updated_at
		`
		err := tx.QueryRow(ctx, query,
			t.ID,
			t.Version,
			t.Status,
			t.Ticket,
			t.Screening,
			t.Repair,
			t.Inspection,
			t.Release,
		).Scan(&t.Version, &t.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrStaleVersion
		}
		if err != nil {
			return fmt.Errorf("update ticket: %w", err)
		}

		return updateMaintenance(ctx, tx, t.ScheduleID, t.Mirror())
	})
}
