package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/flowconductor/conductor/internal/domain"
	"github.com/flowconductor/conductor/internal/domain/repository"
	"github.com/flowconductor/conductor/internal/infrastructure/storage/models"
)

var _ repository.ScheduleStore = (*ScheduleRepository)(nil)

// ScheduleRepository implements repository.ScheduleStore, used both to
// warm the Schedule Cache at startup and to reload single rows on the
// CRUD layer's cache-update notifications.
type ScheduleRepository struct {
	db *bun.DB
}

// NewScheduleRepository returns a ScheduleRepository bound to db.
func NewScheduleRepository(db *bun.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// ListNodes loads every node row, for cache warm-up.
func (r *ScheduleRepository) ListNodes(ctx context.Context) ([]domain.Node, error) {
	var rows []models.NodeModel
	if err := r.db.NewSelect().Model(&rows).Scan(ctx); err != nil {
		return nil, fmt.Errorf("storage: list nodes: %w", err)
	}
	out := make([]domain.Node, 0, len(rows))
	for i := range rows {
		out = append(out, models.NodeToDomain(&rows[i]))
	}
	return out, nil
}

// ListSchedules loads every schedule row, for cache warm-up.
func (r *ScheduleRepository) ListSchedules(ctx context.Context) ([]domain.Schedule, error) {
	var rows []models.ScheduleModel
	if err := r.db.NewSelect().Model(&rows).Scan(ctx); err != nil {
		return nil, fmt.Errorf("storage: list schedules: %w", err)
	}
	out := make([]domain.Schedule, 0, len(rows))
	for i := range rows {
		out = append(out, models.ScheduleToDomain(&rows[i]))
	}
	return out, nil
}

// ListNodeSchedules loads every node-schedule association, for cache
// warm-up.
func (r *ScheduleRepository) ListNodeSchedules(ctx context.Context) ([]domain.NodeSchedule, error) {
	var rows []models.NodeScheduleModel
	if err := r.db.NewSelect().Model(&rows).Scan(ctx); err != nil {
		return nil, fmt.Errorf("storage: list node schedules: %w", err)
	}
	out := make([]domain.NodeSchedule, 0, len(rows))
	for i := range rows {
		out = append(out, models.NodeScheduleToDomain(&rows[i]))
	}
	return out, nil
}

// ListNodeSchedulesByNode loads the associations touching one node, for the
// node_save cache-update handler.
func (r *ScheduleRepository) ListNodeSchedulesByNode(ctx context.Context, nodeID int64) ([]domain.NodeSchedule, error) {
	var rows []models.NodeScheduleModel
	if err := r.db.NewSelect().Model(&rows).Where("node_id = ?", nodeID).Scan(ctx); err != nil {
		return nil, fmt.Errorf("storage: list node schedules for node %d: %w", nodeID, err)
	}
	out := make([]domain.NodeSchedule, 0, len(rows))
	for i := range rows {
		out = append(out, models.NodeScheduleToDomain(&rows[i]))
	}
	return out, nil
}

// ListNodeSchedulesBySchedule loads the associations touching one schedule,
// for the schedule_assoc cache-update handler.
func (r *ScheduleRepository) ListNodeSchedulesBySchedule(ctx context.Context, scheduleID int64) ([]domain.NodeSchedule, error) {
	var rows []models.NodeScheduleModel
	if err := r.db.NewSelect().Model(&rows).Where("schedule_id = ?", scheduleID).Scan(ctx); err != nil {
		return nil, fmt.Errorf("storage: list node schedules for schedule %d: %w", scheduleID, err)
	}
	out := make([]domain.NodeSchedule, 0, len(rows))
	for i := range rows {
		out = append(out, models.NodeScheduleToDomain(&rows[i]))
	}
	return out, nil
}

// GetSchedule loads one schedule by id, for the schedule_save cache-update
// handler.
func (r *ScheduleRepository) GetSchedule(ctx context.Context, scheduleID int64) (*domain.Schedule, error) {
	m := &models.ScheduleModel{}
	if err := r.db.NewSelect().Model(m).Where("id = ?", scheduleID).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("storage: schedule %d not found", scheduleID)
		}
		return nil, fmt.Errorf("storage: get schedule %d: %w", scheduleID, err)
	}
	s := models.ScheduleToDomain(m)
	return &s, nil
}
