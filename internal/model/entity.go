package model

import "time"

type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "Open"
	TicketStatusInProgress TicketStatus = "In Progress"
	TicketStatusResolved   TicketStatus = "Resolved"
)

// Valid reports whether s is one of the three lifecycle states.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved:
		return true
	}
	return false
}

type AdminRole string

const (
	RoleSuperAdmin AdminRole = "super-admin"
	RoleAdmin      AdminRole = "admin"
)

// DefaultSpecialization is stored when an admin is created without tags.
const DefaultSpecialization = "General"

// User is a requester. Rows are created implicitly on first ticket or first OTP login.
type User struct {
	ID             uint64  `gorm:"primaryKey" json:"id"`
	Email          string  `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	WhatsappNumber *string `gorm:"type:varchar(32)" json:"whatsapp_number,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

type Admin struct {
	ID              uint64    `gorm:"primaryKey" json:"id"`
	Email           string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash    string    `gorm:"type:varchar(255);not null" json:"-"`
	Name            string    `gorm:"type:varchar(255);not null" json:"name"`
	Role            AdminRole `gorm:"type:varchar(32);index;not null" json:"role"`
	Specialization  string    `gorm:"type:varchar(255);not null" json:"specialization"`
	QueriesResolved int64     `gorm:"not null;default:0" json:"queries_resolved"`
	AverageRating   *float64  `json:"average_rating"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *Admin) IsSuperAdmin() bool {
	return a.Role == RoleSuperAdmin
}

type Ticket struct {
	ID          string       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uint64       `gorm:"index;not null" json:"user_id"`
	User        *User        `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Category    string       `gorm:"type:varchar(128)" json:"category"`
	Description string       `gorm:"type:text" json:"description"`
	Status      TicketStatus `gorm:"type:varchar(32);index;not null" json:"status"`

	ResolvedByID        *uint64 `gorm:"index" json:"resolved_by_id"`
	ResolvedBy          *Admin  `gorm:"foreignKey:ResolvedByID" json:"resolved_by,omitempty"`
	ForwardedByID       *uint64 `json:"forwarded_by_id"`
	ForwardedBy         *Admin  `gorm:"foreignKey:ForwardedByID" json:"forwarded_by,omitempty"`
	PendingTransferToID *uint64 `gorm:"index" json:"pending_transfer_to_id"`
	PendingTransferTo   *Admin  `gorm:"foreignKey:PendingTransferToID" json:"pending_transfer_to,omitempty"`

	AdminRemark  string  `gorm:"type:text" json:"admin_remark,omitempty"`
	UserRating   *int    `json:"user_rating"`
	UserFeedback *string `gorm:"type:text" json:"user_feedback,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	FeedbackAt *time.Time `json:"feedback_at,omitempty"`
}
