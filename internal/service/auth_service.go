package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/frictionless-support/support-service/internal/auth"
	"github.com/frictionless-support/support-service/internal/errs"
	"github.com/frictionless-support/support-service/internal/model"
	"github.com/frictionless-support/support-service/internal/notify"
	"github.com/frictionless-support/support-service/internal/otp"
)

// AuthService runs the passwordless client login.
type AuthService struct {
	db       *gorm.DB
	codes    otp.Store
	sender   notify.CodeSender
	issuer   *auth.Issuer
	validFor time.Duration
	now      func() time.Time
}

func NewAuthService(db *gorm.DB, codes otp.Store, sender notify.CodeSender, issuer *auth.Issuer, validFor time.Duration) *AuthService {
	return &AuthService{db: db, codes: codes, sender: sender, issuer: issuer, validFor: validFor, now: time.Now}
}

// SendOTP issues a fresh code for email, replacing any live one, and delivers it.
func (s *AuthService) SendOTP(ctx context.Context, email string) error {
	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}
	code, err := otp.GenerateCode()
	if err != nil {
		return errs.Persistence("failed to generate code", err)
	}
	if err := s.codes.Save(ctx, email, code); err != nil {
		return errs.Persistence("failed to store code", err)
	}
	if err := s.sender.SendCode(ctx, email, code, s.validFor); err != nil {
		return errs.External("failed to send OTP", err)
	}
	log.Debug().Str("email", email).Msg("otp issued")
	return nil
}

// VerifyOTP consumes the code and logs the requester in, creating the user on
// first contact.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) (*model.User, string, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, "", err
	}
	if len(code) != otp.CodeLength {
		return nil, "", errs.ErrInvalidOTP
	}
	ok, err := s.codes.Consume(ctx, email, code)
	if err != nil {
		return nil, "", errs.Persistence("failed to verify code", err)
	}
	if !ok {
		return nil, "", errs.ErrInvalidOTP
	}

	now := s.now()
	var user *model.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := upsertUser(tx, email, map[string]interface{}{"last_login_at": now}, &model.User{
			Email:       email,
			LastLoginAt: &now,
		})
		user = u
		return err
	})
	if err != nil {
		return nil, "", errs.Persistence("failed to load user", err)
	}
	token, err := s.issuer.IssueClient(user)
	if err != nil {
		return nil, "", errs.Persistence("failed to issue token", err)
	}
	return user, token, nil
}
