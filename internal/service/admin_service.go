package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/frictionless-support/support-service/internal/auth"
	"github.com/frictionless-support/support-service/internal/errs"
	"github.com/frictionless-support/support-service/internal/model"
)

const minPasswordLen = 8

type CreateAdminInput struct {
	Name           string
	Email          string
	Password       string
	Specialization string
}

type AdminService struct {
	db     *gorm.DB
	issuer *auth.Issuer
}

func NewAdminService(db *gorm.DB, issuer *auth.Issuer) *AdminService {
	return &AdminService{db: db, issuer: issuer}
}

// Login checks credentials and returns the admin with a signed session token.
func (s *AdminService) Login(ctx context.Context, email, password string) (*model.Admin, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, "", errs.Validation("email and password are required")
	}
	var admin model.Admin
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", errs.ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", errs.Persistence("failed to load admin", err)
	}
	if !auth.CheckPassword(admin.PasswordHash, password) {
		return nil, "", errs.ErrInvalidCredentials
	}
	token, err := s.issuer.IssueAdmin(&admin)
	if err != nil {
		return nil, "", errs.Persistence("failed to issue token", err)
	}
	return &admin, token, nil
}

// Create adds a regular admin. Only a super-admin may call it.
func (s *AdminService) Create(ctx context.Context, actor auth.Principal, in CreateAdminInput) (*model.Admin, error) {
	if !actor.IsSuperAdmin() {
		return nil, errs.ErrSuperAdminOnly
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, errs.Validation("name is required")
	}
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if len(in.Password) < minPasswordLen {
		return nil, errs.Validation("password must be at least 8 characters")
	}
	var taken int64
	if err := s.db.WithContext(ctx).Model(&model.Admin{}).Where("email = ?", email).Count(&taken).Error; err != nil {
		return nil, errs.Persistence("failed to check email", err)
	}
	if taken > 0 {
		return nil, errs.ErrEmailTaken
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, errs.Persistence("failed to hash password", err)
	}
	admin := &model.Admin{
		Email:          email,
		PasswordHash:   hash,
		Name:           name,
		Role:           model.RoleAdmin,
		Specialization: NormalizeSpecialization(in.Specialization),
	}
	if err := s.db.WithContext(ctx).Create(admin).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errs.ErrEmailTaken
		}
		return nil, errs.Persistence("failed to create admin", err)
	}
	return admin, nil
}

// NormalizeSpecialization turns a comma separated tag list into a trimmed,
// de-duplicated one, defaulting to General.
func NormalizeSpecialization(raw string) string {
	seen := make(map[string]struct{})
	var tags []string
	for _, tag := range strings.Split(raw, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		k := strings.ToLower(tag)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		tags = append(tags, tag)
	}
	if len(tags) == 0 {
		return model.DefaultSpecialization
	}
	return strings.Join(tags, ", ")
}

func (s *AdminService) List(ctx context.Context) ([]model.Admin, error) {
	admins := []model.Admin{}
	if err := s.db.WithContext(ctx).Order("id").Find(&admins).Error; err != nil {
		return nil, errs.Persistence("failed to list admins", err)
	}
	return admins, nil
}

func (s *AdminService) ChangePassword(ctx context.Context, actor auth.Principal, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return errs.Validation("both old and new passwords are required")
	}
	if len(newPassword) < minPasswordLen {
		return errs.Validation("password must be at least 8 characters")
	}
	var admin model.Admin
	err := s.db.WithContext(ctx).First(&admin, actor.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.ErrAdminNotFound
	}
	if err != nil {
		return errs.Persistence("failed to load admin", err)
	}
	if !auth.CheckPassword(admin.PasswordHash, oldPassword) {
		return errs.ErrIncorrectOldPassword
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return errs.Persistence("failed to hash password", err)
	}
	if err := s.db.WithContext(ctx).Model(&admin).Update("password_hash", hash).Error; err != nil {
		return errs.Persistence("failed to update password", err)
	}
	return nil
}

// EnsureSuperAdmin creates the bootstrap super-admin when no admin exists yet.
// It reports whether a row was created.
func (s *AdminService) EnsureSuperAdmin(ctx context.Context, email, password, name string) (bool, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return false, err
	}
	if password == "" {
		return false, errs.Validation("super admin password is required")
	}
	created := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Admin{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}
		if strings.TrimSpace(name) == "" {
			name = "Super Admin"
		}
		if err := tx.Create(&model.Admin{
			Email:          email,
			PasswordHash:   hash,
			Name:           strings.TrimSpace(name),
			Role:           model.RoleSuperAdmin,
			Specialization: model.DefaultSpecialization,
		}).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, errs.Persistence("failed to bootstrap super admin", err)
	}
	if created {
		log.Info().Str("email", email).Msg("super admin created")
	}
	return created, nil
}
