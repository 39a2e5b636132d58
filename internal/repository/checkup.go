package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/langchou/fleetcare/internal/models"
)

// CheckupRepository 保养节点、零件、召回活动
type CheckupRepository struct {
	db *DB
}

// NewCheckupRepository 创建保养节点仓库
func NewCheckupRepository(db *DB) *CheckupRepository {
	return &CheckupRepository{db: db}
}

// Create 创建保养节点
func (r *CheckupRepository) Create(ctx context.Context, c *models.Checkup) error {
	query := `
		INSERT INTO checkups (range_start, maintenance_group, type, has_campaigns)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if err := r.db.Pool.QueryRow(ctx, query, c.RangeStart, c.MaintenanceGroup, c.Type, c.HasCampaigns).Scan(&c.ID); err != nil {
		return fmt.Errorf("insert checkup: %w", err)
	}
	return nil
}

// GetByID 获取保养节点
func (r *CheckupRepository) GetByID(ctx context.Context, id int64) (*models.Checkup, error) {
	query := `
		SELECT id, range_start, maintenance_group, type, has_campaigns
		FROM checkups WHERE id = $1
	`
	c := &models.Checkup{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(&c.ID, &c.RangeStart, &c.MaintenanceGroup, &c.Type, &c.HasCampaigns)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get checkup by id: %w", err)
	}
	return c, nil
}

// FindCheckup 按分组和节点查找，找不到返回 (nil, nil)
func (r *CheckupRepository) FindCheckup(ctx context.Context, group models.MaintenanceGroup, rangeStart int64) (*models.Checkup, error) {
	query := `
		SELECT id, range_start, maintenance_group, type, has_campaigns
		FROM checkups WHERE maintenance_group = $1 AND range_start = $2
	`
	c := &models.Checkup{}
	err := r.db.Pool.QueryRow(ctx, query, group, rangeStart).Scan(&c.ID, &c.RangeStart, &c.MaintenanceGroup, &c.Type, &c.HasCampaigns)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find checkup: %w", err)
	}
	return c, nil
}

// AddPart 为保养节点添加零件
func (r *CheckupRepository) AddPart(ctx context.Context, p *models.CheckupPart) error {
	query := `
		INSERT INTO checkup_parts (checkup_id, part_number, description, quantity)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if err := r.db.Pool.QueryRow(ctx, query, p.CheckupID, p.PartNumber, p.Description, p.Quantity).Scan(&p.ID); err != nil {
		return fmt.Errorf("insert checkup part: %w", err)
	}
	return nil
}

// ListParts 保养节点所需零件
func (r *CheckupRepository) ListParts(ctx context.Context, checkupID int64) ([]models.CheckupPart, error) {
	query := `
		SELECT id, checkup_id, part_number, description, quantity
		FROM checkup_parts WHERE checkup_id = $1 ORDER BY id
	`
	rows, err := r.db.Pool.Query(ctx, query, checkupID)
	if err != nil {
		return nil, fmt.Errorf("list checkup parts: %w", err)
	}
	defer rows.Close()

	parts := []models.CheckupPart{}
	for rows.Next() {
		var p models.CheckupPart
		if err := rows.Scan(&p.ID, &p.CheckupID, &p.PartNumber, &p.Description, &p.Quantity); err != nil {
			return nil, fmt.Errorf("scan checkup part: %w", err)
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

// UpsertCampaign 同步外部召回活动
func (r *CheckupRepository) UpsertCampaign(ctx context.Context, c models.FieldCampaign) error {
	query := `
		INSERT INTO field_campaigns (number, chassis, description, open)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (number, chassis) DO UPDATE SET
			description = EXCLUDED.description,
			open = EXCLUDED.open
	`
	if _, err := r.db.Pool.Exec(ctx, query, c.Number, c.Chassis, c.Description, c.Open); err != nil {
		return fmt.Errorf("upsert campaign: %w", err)
	}
	return nil
}

// ListOpenCampaigns 车辆未完成的召回活动
func (r *CheckupRepository) ListOpenCampaigns(ctx context.Context, chassisNumber string) ([]models.FieldCampaign, error) {
	query := `
		SELECT number, chassis, description, open
		FROM field_campaigns WHERE chassis = $1 AND open ORDER BY number
	`
	rows, err := r.db.Pool.Query(ctx, query, chassisNumber)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []models.FieldCampaign{}
	for rows.Next() {
		var c models.FieldCampaign
		if err := rows.Scan(&c.Number, &c.Chassis, &c.Description, &c.Open); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}
