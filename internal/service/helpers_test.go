package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/frictionless-support/support-service/internal/auth"
	"github.com/frictionless-support/support-service/internal/model"
)

// newTestDB returns a private in-memory database. One connection keeps the
// memory database alive and serialises writers like a row lock would.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Admin{}, &model.Ticket{}))
	return db
}

func seedAdmin(t *testing.T, db *gorm.DB, name string, role model.AdminRole) *model.Admin {
	t.Helper()
	a := &model.Admin{
		Email:          fmt.Sprintf("%s@support.test", name),
		PasswordHash:   "x",
		Name:           name,
		Role:           role,
		Specialization: model.DefaultSpecialization,
	}
	require.NoError(t, db.Create(a).Error)
	return a
}

func principal(a *model.Admin) auth.Principal {
	return auth.Principal{ID: a.ID, Role: string(a.Role)}
}

func clientOf(ticket *model.Ticket) auth.Principal {
	return auth.Principal{ID: ticket.UserID, Role: auth.RoleClient}
}

func newTicketService(db *gorm.DB) *TicketService {
	s := NewTicketService(db)
	s.pick = func(int) int { return 0 }
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func createTicket(t *testing.T, s *TicketService, email string) *model.Ticket {
	t.Helper()
	tk, err := s.Create(context.Background(), CreateTicketInput{
		Category:       "Exams",
		Description:    "cannot see my grade",
		Email:          email,
		WhatsappNumber: "+15550100",
	})
	require.NoError(t, err)
	return tk
}
