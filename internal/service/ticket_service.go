package service

import (
	"context"
	"database/sql"
	"errors"
	"math/rand/v2"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frictionless-support/support-service/internal/auth"
	"github.com/frictionless-support/support-service/internal/errs"
	"github.com/frictionless-support/support-service/internal/model"
)

// TicketServicer is what the HTTP layer needs from the lifecycle engine.
type TicketServicer interface {
	Create(ctx context.Context, in CreateTicketInput) (*model.Ticket, error)
	GetByID(ctx context.Context, id string) (*model.Ticket, error)
	List(ctx context.Context, f ListFilter) (*ListResult, error)
	History(ctx context.Context, email string) ([]model.Ticket, error)
	Lock(ctx context.Context, id string, actor auth.Principal) (*model.Ticket, error)
	Resolve(ctx context.Context, id string, actor auth.Principal, remark string) (*model.Ticket, error)
	InitiateTransfer(ctx context.Context, id string, actor auth.Principal, targetAdminID uint64) (*model.Ticket, error)
	AcceptTransfer(ctx context.Context, id string, actor auth.Principal) (*model.Ticket, error)
	RejectTransfer(ctx context.Context, id string, actor auth.Principal) (*model.Ticket, error)
	SubmitFeedback(ctx context.Context, id string, requester auth.Principal, rating int, feedback string) (*model.Ticket, error)
}

var _ TicketServicer = (*TicketService)(nil)

type CreateTicketInput struct {
	Category       string
	Description    string
	Email          string
	WhatsappNumber string
}

const (
	maxCategoryLen    = 128
	maxDescriptionLen = 5000
	maxEmailLen       = 254
	maxWhatsappLen    = 32
)

type TicketService struct {
	db *gorm.DB
	// pick returns an index in [0, n). Uniform random unless replaced in tests.
	pick func(n int) int
	now  func() time.Time
}

func NewTicketService(db *gorm.DB) *TicketService {
	return &TicketService{db: db, pick: rand.IntN, now: time.Now}
}

// NormalizeEmail trims and lower-cases an address and checks its shape.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", errs.Validation("email is required")
	}
	if len(email) > maxEmailLen {
		return "", errs.Validation("email is too long")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return "", errs.Validation("invalid email format")
	}
	return email, nil
}

// Create stores a new Open ticket for the requester identified by email,
// creating the requester on first contact, and pre-assigns it to a random
// non-super-admin through the pending transfer slot.
func (s *TicketService) Create(ctx context.Context, in CreateTicketInput) (*model.Ticket, error) {
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	whatsapp := strings.TrimSpace(in.WhatsappNumber)
	if whatsapp == "" {
		return nil, errs.Validation("whatsapp number is required")
	}
	if len(whatsapp) > maxWhatsappLen {
		return nil, errs.Validation("whatsapp number is too long")
	}
	category := strings.TrimSpace(in.Category)
	if len(category) > maxCategoryLen {
		return nil, errs.Validation("category is too long")
	}
	if len(in.Description) > maxDescriptionLen {
		return nil, errs.Validation("description is too long")
	}

	ticket := &model.Ticket{
		ID:          uuid.NewString(),
		Category:    category,
		Description: in.Description,
		Status:      model.TicketStatusOpen,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := upsertUser(tx, email, map[string]interface{}{"whatsapp_number": whatsapp}, &model.User{
			Email:          email,
			WhatsappNumber: &whatsapp,
		})
		if err != nil {
			return err
		}
		ticket.UserID = user.ID

		assignee, err := s.pickAssignee(tx)
		if err != nil {
			return err
		}
		ticket.PendingTransferToID = assignee
		return tx.Create(ticket).Error
	})
	if err != nil {
		return nil, errs.Persistence("failed to create ticket", err)
	}
	return ticket, nil
}

// upsertUser inserts u or, when the email exists, applies updates. Last write wins.
func upsertUser(tx *gorm.DB, email string, updates map[string]interface{}, u *model.User) (*model.User, error) {
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.Assignments(updates),
	}).Create(u).Error
	if err != nil {
		return nil, err
	}
	var user model.User
	if err := tx.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *TicketService) pickAssignee(tx *gorm.DB) (*uint64, error) {
	var ids []uint64
	if err := tx.Model(&model.Admin{}).
		Where("role <> ?", model.RoleSuperAdmin).
		Order("id").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	id := ids[s.pick(len(ids))]
	return &id, nil
}

func (s *TicketService) GetByID(ctx context.Context, id string) (*model.Ticket, error) {
	return s.load(s.db.WithContext(ctx), id)
}

func (s *TicketService) load(tx *gorm.DB, id string) (*model.Ticket, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errs.ErrTicketNotFound
	}
	var t model.Ticket
	err := tx.Preload("User").
		Preload("ResolvedBy").
		Preload("ForwardedBy").
		Preload("PendingTransferTo").
		First(&t, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, errs.Persistence("failed to load ticket", err)
	}
	return &t, nil
}

// transition applies a guarded update and, when no row matched, asks classify
// to explain why using the current row. classify must return a non-nil error.
func (s *TicketService) transition(ctx context.Context, id string, apply func(tx *gorm.DB) *gorm.DB,
	classify func(t *model.Ticket) error, after func(tx *gorm.DB) error) (*model.Ticket, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errs.ErrTicketNotFound
	}
	var out *model.Ticket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := apply(tx.Model(&model.Ticket{}).Where("id = ?", id))
		if res.Error != nil {
			return errs.Persistence("failed to update ticket", res.Error)
		}
		if res.RowsAffected == 0 {
			current, err := s.load(tx, id)
			if err != nil {
				return err
			}
			return classify(current)
		}
		if after != nil {
			if err := after(tx); err != nil {
				return err
			}
		}
		t, err := s.load(tx, id)
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		var e *errs.Error
		if errors.As(err, &e) {
			return nil, err
		}
		return nil, errs.Persistence("failed to update ticket", err)
	}
	return out, nil
}

// Lock claims an Open ticket for actor. Any admin may lock, regardless of pre-assignment.
func (s *TicketService) Lock(ctx context.Context, id string, actor auth.Principal) (*model.Ticket, error) {
	now := s.now()
	return s.transition(ctx, id,
		func(q *gorm.DB) *gorm.DB {
			return q.Where("status = ?", model.TicketStatusOpen).Updates(map[string]interface{}{
				"status":                 model.TicketStatusInProgress,
				"resolved_by_id":         actor.ID,
				"pending_transfer_to_id": nil,
				"updated_at":             now,
			})
		},
		func(*model.Ticket) error { return errs.ErrTicketNotOpen },
		nil,
	)
}

// Resolve closes a ticket held by actor and credits actor with one resolution.
func (s *TicketService) Resolve(ctx context.Context, id string, actor auth.Principal, remark string) (*model.Ticket, error) {
	now := s.now()
	return s.transition(ctx, id,
		func(q *gorm.DB) *gorm.DB {
			return q.Where("status = ? AND resolved_by_id = ?", model.TicketStatusInProgress, actor.ID).
				Updates(map[string]interface{}{
					"status":                 model.TicketStatusResolved,
					"admin_remark":           strings.TrimSpace(remark),
					"resolved_at":            now,
					"pending_transfer_to_id": nil,
					"updated_at":             now,
				})
		},
		func(t *model.Ticket) error {
			switch t.Status {
			case model.TicketStatusResolved:
				return errs.ErrTicketResolved
			case model.TicketStatusOpen:
				return errs.ErrTicketNotInProgress
			}
			return errs.ErrNotTicketHolder
		},
		func(tx *gorm.DB) error {
			res := tx.Model(&model.Admin{}).Where("id = ?", actor.ID).
				UpdateColumn("queries_resolved", gorm.Expr("queries_resolved + ?", 1))
			if res.Error != nil {
				return errs.Persistence("failed to update admin stats", res.Error)
			}
			if res.RowsAffected == 0 {
				return errs.ErrAdminNotFound
			}
			return nil
		},
	)
}

// InitiateTransfer offers an In Progress ticket to targetAdminID. Only the holder
// or a super-admin may offer; a new offer replaces a pending one.
func (s *TicketService) InitiateTransfer(ctx context.Context, id string, actor auth.Principal, targetAdminID uint64) (*model.Ticket, error) {
	if targetAdminID == 0 {
		return nil, errs.Validation("target admin id is required")
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Admin{}).Where("id = ?", targetAdminID).Count(&count).Error; err != nil {
		return nil, errs.Persistence("failed to load target admin", err)
	}
	if count == 0 {
		return nil, errs.NotFound("target admin not found")
	}
	now := s.now()
	return s.transition(ctx, id,
		func(q *gorm.DB) *gorm.DB {
			q = q.Where("status = ? AND resolved_by_id <> ?", model.TicketStatusInProgress, targetAdminID)
			if !actor.IsSuperAdmin() {
				q = q.Where("resolved_by_id = ?", actor.ID)
			}
			return q.Updates(map[string]interface{}{
				"pending_transfer_to_id": targetAdminID,
				"updated_at":             now,
			})
		},
		func(t *model.Ticket) error {
			if t.Status != model.TicketStatusInProgress {
				return errs.Conflict("only in-progress tickets can be transferred")
			}
			if !actor.IsSuperAdmin() && (t.ResolvedByID == nil || *t.ResolvedByID != actor.ID) {
				return errs.ErrNotTicketHolder
			}
			return errs.ErrAlreadyHeldByTarget
		},
		nil,
	)
}

// AcceptTransfer makes actor the holder of a ticket offered to them. The previous
// holder, if any, is recorded as the forwarder. Accepting an Open pre-assigned
// ticket claims it.
func (s *TicketService) AcceptTransfer(ctx context.Context, id string, actor auth.Principal) (*model.Ticket, error) {
	now := s.now()
	return s.transition(ctx, id,
		func(q *gorm.DB) *gorm.DB {
			return q.Where("pending_transfer_to_id = ? AND status <> ?", actor.ID, model.TicketStatusResolved).
				Updates(map[string]interface{}{
					"forwarded_by_id":        gorm.Expr("resolved_by_id"),
					"resolved_by_id":         actor.ID,
					"pending_transfer_to_id": nil,
					"status":                 model.TicketStatusInProgress,
					"updated_at":             now,
				})
		},
		s.classifyOffer(actor),
		nil,
	)
}

// RejectTransfer declines an offer addressed to actor. Ownership is unchanged.
func (s *TicketService) RejectTransfer(ctx context.Context, id string, actor auth.Principal) (*model.Ticket, error) {
	now := s.now()
	return s.transition(ctx, id,
		func(q *gorm.DB) *gorm.DB {
			return q.Where("pending_transfer_to_id = ? AND status <> ?", actor.ID, model.TicketStatusResolved).
				Updates(map[string]interface{}{
					"pending_transfer_to_id": nil,
					"updated_at":             now,
				})
		},
		s.classifyOffer(actor),
		nil,
	)
}

func (s *TicketService) classifyOffer(actor auth.Principal) func(t *model.Ticket) error {
	return func(t *model.Ticket) error {
		if t.PendingTransferToID == nil || *t.PendingTransferToID != actor.ID {
			return errs.ErrTransferNotForYou
		}
		return errs.ErrTicketResolved
	}
}

// SubmitFeedback records the requester's rating once per resolved ticket and
// recomputes the resolver's average over all their rated tickets.
func (s *TicketService) SubmitFeedback(ctx context.Context, id string, requester auth.Principal, rating int, feedback string) (*model.Ticket, error) {
	if rating < 1 || rating > 5 {
		return nil, errs.Validation("rating must be between 1 and 5")
	}
	if len(feedback) > maxDescriptionLen {
		return nil, errs.Validation("feedback is too long")
	}
	var text *string
	if f := strings.TrimSpace(feedback); f != "" {
		text = &f
	}
	now := s.now()
	return s.transition(ctx, id,
		func(q *gorm.DB) *gorm.DB {
			return q.Where("user_id = ? AND status = ? AND user_rating IS NULL", requester.ID, model.TicketStatusResolved).
				Updates(map[string]interface{}{
					"user_rating":   rating,
					"user_feedback": text,
					"feedback_at":   now,
					"updated_at":    now,
				})
		},
		func(t *model.Ticket) error {
			switch {
			case t.UserID != requester.ID:
				return errs.ErrNotTicketRequester
			case t.Status != model.TicketStatusResolved:
				return errs.ErrTicketNotResolved
			}
			return errs.ErrFeedbackExists
		},
		func(tx *gorm.DB) error {
			var t model.Ticket
			if err := tx.Select("id", "resolved_by_id").First(&t, "id = ?", id).Error; err != nil {
				return errs.Persistence("failed to load resolver", err)
			}
			if t.ResolvedByID == nil {
				return nil
			}
			return recomputeAverageRating(tx, *t.ResolvedByID)
		},
	)
}

func recomputeAverageRating(tx *gorm.DB, adminID uint64) error {
	var avg sql.NullFloat64
	err := tx.Model(&model.Ticket{}).
		Select("AVG(user_rating)").
		Where("resolved_by_id = ? AND status = ? AND user_rating IS NOT NULL", adminID, model.TicketStatusResolved).
		Row().Scan(&avg)
	if err != nil {
		return errs.Persistence("failed to compute average rating", err)
	}
	var value *float64
	if avg.Valid {
		value = &avg.Float64
	}
	if err := tx.Model(&model.Admin{}).Where("id = ?", adminID).UpdateColumn("average_rating", value).Error; err != nil {
		return errs.Persistence("failed to update admin rating", err)
	}
	return nil
}
