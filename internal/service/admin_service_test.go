package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frictionless-support/support-service/internal/auth"
	"github.com/frictionless-support/support-service/internal/errs"
	"github.com/frictionless-support/support-service/internal/model"
)

func newAdminService(t *testing.T) (*AdminService, *auth.Issuer) {
	t.Helper()
	issuer := auth.NewIssuer("test-secret", time.Hour, time.Hour)
	return NewAdminService(newTestDB(t), issuer), issuer
}

func TestEnsureSuperAdminIsIdempotent(t *testing.T) {
	s, _ := newAdminService(t)
	ctx := context.Background()

	created, err := s.EnsureSuperAdmin(ctx, "Root@Support.com", "bootstrap-pass", "")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.EnsureSuperAdmin(ctx, "someone@else.com", "other-pass", "Other")
	require.NoError(t, err)
	assert.False(t, created)

	admins, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "root@support.com", admins[0].Email)
	assert.Equal(t, model.RoleSuperAdmin, admins[0].Role)
	assert.Equal(t, "Super Admin", admins[0].Name)

	_, err = s.EnsureSuperAdmin(ctx, "root@support.com", "", "")
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestAdminLogin(t *testing.T) {
	s, issuer := newAdminService(t)
	ctx := context.Background()
	_, err := s.EnsureSuperAdmin(ctx, "root@support.com", "bootstrap-pass", "Root")
	require.NoError(t, err)

	admin, token, err := s.Login(ctx, " ROOT@support.com", "bootstrap-pass")
	require.NoError(t, err)
	assert.Equal(t, "Root", admin.Name)

	p, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, p.ID)
	assert.True(t, p.IsSuperAdmin())

	_, _, err = s.Login(ctx, "root@support.com", "wrong")
	assert.ErrorIs(t, err, errs.ErrInvalidCredentials)
	_, _, err = s.Login(ctx, "ghost@support.com", "bootstrap-pass")
	assert.ErrorIs(t, err, errs.ErrInvalidCredentials)
	_, _, err = s.Login(ctx, "", "")
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestCreateAdmin(t *testing.T) {
	s, _ := newAdminService(t)
	ctx := context.Background()
	root := auth.Principal{ID: 1, Role: string(model.RoleSuperAdmin)}

	a, err := s.Create(ctx, root, CreateAdminInput{
		Name:           " Ana ",
		Email:          "Ana@Support.com",
		Password:       "long-enough",
		Specialization: "Exams, hostel ,exams,, Fees",
	})
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, a.Role)
	assert.Equal(t, "Ana", a.Name)
	assert.Equal(t, "ana@support.com", a.Email)
	assert.Equal(t, "Exams, hostel, Fees", a.Specialization)
	assert.NotEqual(t, "long-enough", a.PasswordHash)
	assert.True(t, auth.CheckPassword(a.PasswordHash, "long-enough"))

	_, err = s.Create(ctx, root, CreateAdminInput{Name: "Dup", Email: "ana@support.com", Password: "long-enough"})
	assert.ErrorIs(t, err, errs.ErrEmailTaken)

	_, err = s.Create(ctx, auth.Principal{ID: a.ID, Role: string(model.RoleAdmin)},
		CreateAdminInput{Name: "Ben", Email: "ben@support.com", Password: "long-enough"})
	assert.ErrorIs(t, err, errs.ErrSuperAdminOnly)

	_, err = s.Create(ctx, root, CreateAdminInput{Name: "Ben", Email: "ben@support.com", Password: "short"})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	_, err = s.Create(ctx, root, CreateAdminInput{Email: "ben@support.com", Password: "long-enough"})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestNormalizeSpecialization(t *testing.T) {
	assert.Equal(t, model.DefaultSpecialization, NormalizeSpecialization(""))
	assert.Equal(t, model.DefaultSpecialization, NormalizeSpecialization(" , ,"))
	assert.Equal(t, "Fees", NormalizeSpecialization(" Fees "))
	assert.Equal(t, "Fees, exams", NormalizeSpecialization("Fees,exams,FEES,Exams"))
}

func TestChangePassword(t *testing.T) {
	s, _ := newAdminService(t)
	ctx := context.Background()
	_, err := s.EnsureSuperAdmin(ctx, "root@support.com", "bootstrap-pass", "Root")
	require.NoError(t, err)
	admin, _, err := s.Login(ctx, "root@support.com", "bootstrap-pass")
	require.NoError(t, err)
	me := auth.Principal{ID: admin.ID, Role: string(admin.Role)}

	err = s.ChangePassword(ctx, me, "wrong-pass", "brand-new-pass")
	assert.ErrorIs(t, err, errs.ErrIncorrectOldPassword)
	err = s.ChangePassword(ctx, me, "bootstrap-pass", "")
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	require.NoError(t, s.ChangePassword(ctx, me, "bootstrap-pass", "brand-new-pass"))
	_, _, err = s.Login(ctx, "root@support.com", "bootstrap-pass")
	assert.ErrorIs(t, err, errs.ErrInvalidCredentials)
	_, _, err = s.Login(ctx, "root@support.com", "brand-new-pass")
	assert.NoError(t, err)

	err = s.ChangePassword(ctx, auth.Principal{ID: 999, Role: string(model.RoleAdmin)}, "a", "brand-new-pass")
	assert.ErrorIs(t, err, errs.ErrAdminNotFound)
}
