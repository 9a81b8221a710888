package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/frictionless-support/support-service/internal/cache"
	"github.com/frictionless-support/support-service/internal/errs"
	"github.com/frictionless-support/support-service/internal/model"
)

type AdminStat struct {
	ID              uint64   `json:"id"`
	Name            string   `json:"name"`
	Specialization  string   `json:"specialization"`
	QueriesResolved int64    `json:"queries_resolved"`
	AverageRating   *float64 `json:"average_rating"`
}

type MyStats struct {
	OwnedInProgress int64 `json:"owned_in_progress"`
	PendingForMe    int64 `json:"pending_for_me"`
}

type Stats struct {
	Admins []AdminStat `json:"admins"`
	Me     MyStats     `json:"me"`
}

// StatsService serves dashboard counters through a fixed-TTL cache. A cached
// entry is never invalidated by ticket changes.
type StatsService struct {
	db    *gorm.DB
	cache cache.Provider
}

func NewStatsService(db *gorm.DB, c cache.Provider) *StatsService {
	return &StatsService{db: db, cache: c}
}

func statsKey(adminID uint64) string {
	return "stats:admin:" + strconv.FormatUint(adminID, 10)
}

func (s *StatsService) ForAdmin(ctx context.Context, adminID uint64) (*Stats, error) {
	key := statsKey(adminID)
	if b, err := s.cache.Get(ctx, key); err == nil {
		var st Stats
		if err := json.Unmarshal(b, &st); err == nil {
			return &st, nil
		}
		log.Warn().Str("key", key).Msg("stats: discarding undecodable cache entry")
	} else if !errors.Is(err, cache.ErrMiss) {
		log.Warn().Err(err).Str("key", key).Msg("stats: cache read failed")
	}

	st, err := s.compute(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(st); err == nil {
		if err := s.cache.Set(ctx, key, b); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("stats: cache write failed")
		}
	}
	return st, nil
}

func (s *StatsService) compute(ctx context.Context, adminID uint64) (*Stats, error) {
	db := s.db.WithContext(ctx)
	st := &Stats{Admins: []AdminStat{}}
	err := db.Model(&model.Admin{}).
		Select("id", "name", "specialization", "queries_resolved", "average_rating").
		Order("id").
		Scan(&st.Admins).Error
	if err != nil {
		return nil, errs.Persistence("failed to load admin stats", err)
	}
	err = db.Model(&model.Ticket{}).
		Where("status = ? AND resolved_by_id = ?", model.TicketStatusInProgress, adminID).
		Count(&st.Me.OwnedInProgress).Error
	if err != nil {
		return nil, errs.Persistence("failed to count owned tickets", err)
	}
	err = db.Model(&model.Ticket{}).
		Where("status <> ? AND pending_transfer_to_id = ?", model.TicketStatusResolved, adminID).
		Count(&st.Me.PendingForMe).Error
	if err != nil {
		return nil, errs.Persistence("failed to count pending tickets", err)
	}
	return st, nil
}
