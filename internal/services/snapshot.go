package services

import (
	"context"
	"fmt"
	"time"

	"fleetfix/internal/models"

	"gorm.io/gorm"
)

// WorkOrderSnapshot is a normalized read-only view of a work order at one
// point in time. The engine never mutates a snapshot; every side effect goes
// through discrete update commands against the store.
type WorkOrderSnapshot struct {
	ID                 uint
	Number             string
	Title              string
	Description        string
	Status             string
	Priority           string
	Category           string
	Subcategory        string
	AssignedTechID     *uint
	LocationID         *uint
	AssetID            *uint
	AssetMileage       float64
	AssetOwnershipType string
	Watched            bool
	SLADue             *time.Time
	TotalPausedSeconds int64
	CreatedAt          time.Time
}

// SnapshotProvider reads work order snapshots out of the datastore.
type SnapshotProvider struct {
	db *gorm.DB
}

func NewSnapshotProvider(db *gorm.DB) *SnapshotProvider {
	return &SnapshotProvider{db: db}
}

// GetSnapshot 读取单个工单快照
func (p *SnapshotProvider) GetSnapshot(ctx context.Context, workOrderID uint) (*WorkOrderSnapshot, error) {
	var wo models.WorkOrder
	if err := p.db.WithContext(ctx).Preload("Asset").First(&wo, workOrderID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("work order %d not found", workOrderID)
		}
		return nil, fmt.Errorf("failed to load work order %d: %w", workOrderID, err)
	}
	return snapshotFromModel(&wo), nil
}

// ListActiveSLAEntities returns snapshots of every work order with a SLA
// deadline that is not in a terminal status.
func (p *SnapshotProvider) ListActiveSLAEntities(ctx context.Context) ([]*WorkOrderSnapshot, error) {
	var orders []models.WorkOrder
	if err := p.db.WithContext(ctx).Preload("Asset").
		Where("sla_due IS NOT NULL AND status NOT IN ?", models.TerminalStatuses).
		Order("id ASC").
		Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list active SLA work orders: %w", err)
	}
	snaps := make([]*WorkOrderSnapshot, 0, len(orders))
	for i := range orders {
		snaps = append(snaps, snapshotFromModel(&orders[i]))
	}
	return snaps, nil
}

func snapshotFromModel(wo *models.WorkOrder) *WorkOrderSnapshot {
	snap := &WorkOrderSnapshot{
		ID:                 wo.ID,
		Number:             wo.Number,
		Title:              wo.Title,
		Description:        wo.Description,
		Status:             wo.Status,
		Priority:           wo.Priority,
		Category:           wo.Category,
		Subcategory:        wo.Subcategory,
		AssignedTechID:     wo.AssignedTechID,
		LocationID:         wo.LocationID,
		AssetID:            wo.AssetID,
		Watched:            wo.Watched,
		SLADue:             wo.SLADue,
		TotalPausedSeconds: wo.TotalPausedSeconds,
		CreatedAt:          wo.CreatedAt,
	}
	if wo.Asset != nil {
		snap.AssetMileage = wo.Asset.Mileage
		snap.AssetOwnershipType = wo.Asset.OwnershipType
	}
	return snap
}
