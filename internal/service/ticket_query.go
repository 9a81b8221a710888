package service

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/frictionless-support/support-service/internal/errs"
	"github.com/frictionless-support/support-service/internal/model"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100

	StatusFilterAll = "All"
	SortNewest      = "newest"
	SortOldest      = "oldest"
)

// ListFilter selects tickets for the admin dashboard. Zero values mean "no filter".
type ListFilter struct {
	Page       int
	Limit      int
	Status     string
	Search     string
	AssignedTo uint64
	PendingFor uint64
	SortBy     string
}

type ListResult struct {
	Tickets     []model.Ticket `json:"tickets"`
	Total       int64          `json:"total"`
	Pages       int            `json:"pages"`
	CurrentPage int            `json:"current_page"`
}

func (f *ListFilter) normalize() error {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultPageLimit
	}
	if f.Limit > maxPageLimit {
		f.Limit = maxPageLimit
	}
	if f.Status == "" {
		f.Status = StatusFilterAll
	}
	if f.Status != StatusFilterAll && !model.TicketStatus(f.Status).Valid() {
		return errs.Validation("unknown status filter")
	}
	switch f.SortBy {
	case "":
		f.SortBy = SortNewest
	case SortNewest, SortOldest:
	default:
		return errs.Validation("sortBy must be newest or oldest")
	}
	f.Search = strings.ToLower(strings.TrimSpace(f.Search))
	return nil
}

func (s *TicketService) List(ctx context.Context, f ListFilter) (*ListResult, error) {
	if err := f.normalize(); err != nil {
		return nil, err
	}

	q := s.db.WithContext(ctx).Model(&model.Ticket{})
	if f.Status != StatusFilterAll {
		q = q.Where("status = ?", f.Status)
	}
	if f.Search != "" {
		q = q.Where("user_id IN (?)",
			s.db.Model(&model.User{}).Select("id").Where("LOWER(email) LIKE ? ESCAPE '\\'", "%"+escapeLike(f.Search)+"%"))
	}
	if f.AssignedTo != 0 {
		q = q.Where("resolved_by_id = ?", f.AssignedTo)
	}
	if f.PendingFor != 0 {
		q = q.Where("pending_transfer_to_id = ?", f.PendingFor)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, errs.Persistence("failed to count tickets", err)
	}

	order := "created_at DESC, id"
	if f.SortBy == SortOldest {
		order = "created_at ASC, id"
	}
	tickets := make([]model.Ticket, 0, f.Limit)
	err := q.Preload("User").
		Preload("ResolvedBy").
		Preload("ForwardedBy").
		Preload("PendingTransferTo").
		Order(order).
		Offset((f.Page - 1) * f.Limit).
		Limit(f.Limit).
		Find(&tickets).Error
	if err != nil {
		return nil, errs.Persistence("failed to list tickets", err)
	}

	return &ListResult{
		Tickets:     tickets,
		Total:       total,
		Pages:       int((total + int64(f.Limit) - 1) / int64(f.Limit)),
		CurrentPage: f.Page,
	}, nil
}

// History returns every ticket filed under email, newest first. Unknown emails yield an empty list.
func (s *TicketService) History(ctx context.Context, email string) ([]model.Ticket, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	tickets := []model.Ticket{}
	err = s.db.WithContext(ctx).
		Joins("JOIN users ON users.id = tickets.user_id").
		Where("users.email = ?", email).
		Preload("ResolvedBy").
		Order("tickets.created_at DESC").
		Find(&tickets).Error
	if err != nil {
		return nil, errs.Persistence("failed to load ticket history", err)
	}
	return tickets, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
