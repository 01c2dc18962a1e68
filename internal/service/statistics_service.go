package service

import (
	"context"
	"fmt"
	"time"

	"backend/internal/model"

	"gorm.io/gorm"
)

// StatusCount is one bucket of a group-by aggregate.
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type PriorityCount struct {
	Priority string `json:"priority"`
	Count    int64  `json:"count"`
}

// FleetSummary breaks the pool down by vehicle and driver status.
type FleetSummary struct {
	Vehicles []StatusCount `json:"vehicles"`
	Drivers  []StatusCount `json:"drivers"`
}

// DashboardStatistics is the aggregate view the operations dashboard polls.
type DashboardStatistics struct {
	ByStatus   []StatusCount   `json:"by_status"`
	ByPriority []PriorityCount `json:"by_priority"`
	Stalled    int64           `json:"stalled"`
	Overdue    int64           `json:"overdue"`
	Fleet      FleetSummary    `json:"fleet"`
}

type StatisticsService interface {
	GetStatistics(ctx context.Context) (DashboardStatistics, error)
}

type statisticsService struct {
	db *gorm.DB
}

func NewStatisticsService(db *gorm.DB) StatisticsService {
	return &statisticsService{db: db}
}

// GetStatistics aggregates request counts by status and priority plus the
// fleet breakdown in a handful of group-by queries.
func (s *statisticsService) GetStatistics(ctx context.Context) (DashboardStatistics, error) {
	var stats DashboardStatistics

	if err := s.db.WithContext(ctx).Model(&model.TripRequest{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Order("status ASC").
		Scan(&stats.ByStatus).Error; err != nil {
		return stats, fmt.Errorf("failed to count requests by status: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&model.TripRequest{}).
		Select("priority, COUNT(*) as count").
		Group("priority").
		Order("priority ASC").
		Scan(&stats.ByPriority).Error; err != nil {
		return stats, fmt.Errorf("failed to count requests by priority: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&model.TripRequest{}).
		Where("stalled = ?", true).
		Count(&stats.Stalled).Error; err != nil {
		return stats, fmt.Errorf("failed to count stalled requests: %w", err)
	}

	cutoff := time.Now().Add(-model.OverdueAfter)
	if err := s.db.WithContext(ctx).Model(&model.TripRequest{}).
		Where("status = ? AND created_at < ?", model.RequestSubmitted, cutoff).
		Count(&stats.Overdue).Error; err != nil {
		return stats, fmt.Errorf("failed to count overdue requests: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&model.Vehicle{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Order("status ASC").
		Scan(&stats.Fleet.Vehicles).Error; err != nil {
		return stats, fmt.Errorf("failed to count vehicles by status: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&model.Driver{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Order("status ASC").
		Scan(&stats.Fleet.Drivers).Error; err != nil {
		return stats, fmt.Errorf("failed to count drivers by status: %w", err)
	}

	return stats, nil
}
