package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frictionless-support/support-service/internal/errs"
	"github.com/frictionless-support/support-service/internal/model"
)

func TestCreateTicket(t *testing.T) {
	db := newTestDB(t)
	seedAdmin(t, db, "root", model.RoleSuperAdmin)
	a1 := seedAdmin(t, db, "ana", model.RoleAdmin)
	a2 := seedAdmin(t, db, "ben", model.RoleAdmin)

	s := newTicketService(db)
	var seen int
	s.pick = func(n int) int { seen = n; return n - 1 }

	tk, err := s.Create(context.Background(), CreateTicketInput{
		Category:       "Hostel",
		Description:    "no hot water",
		Email:          "  Student@Uni.EDU ",
		WhatsappNumber: " +15550100 ",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, seen, "super admins are not candidates")
	_, err = uuid.Parse(tk.ID)
	assert.NoError(t, err)
	assert.Equal(t, model.TicketStatusOpen, tk.Status)
	require.NotNil(t, tk.PendingTransferToID)
	assert.Equal(t, a2.ID, *tk.PendingTransferToID)
	assert.NotEqual(t, a1.ID, *tk.PendingTransferToID)
	assert.Nil(t, tk.ResolvedByID)

	var user model.User
	require.NoError(t, db.First(&user, tk.UserID).Error)
	assert.Equal(t, "student@uni.edu", user.Email)
	require.NotNil(t, user.WhatsappNumber)
	assert.Equal(t, "+15550100", *user.WhatsappNumber)
}

func TestCreateTicketReusesRequester(t *testing.T) {
	db := newTestDB(t)
	s := newTicketService(db)

	first := createTicket(t, s, "s@uni.edu")
	second, err := s.Create(context.Background(), CreateTicketInput{
		Email:          "S@uni.edu",
		WhatsappNumber: "+15550199",
	})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.UserID, second.UserID)

	var users []model.User
	require.NoError(t, db.Find(&users).Error)
	require.Len(t, users, 1)
	assert.Equal(t, "+15550199", *users[0].WhatsappNumber, "latest contact number wins")
}

func TestCreateTicketWithoutAdminsIsUnassigned(t *testing.T) {
	db := newTestDB(t)
	seedAdmin(t, db, "root", model.RoleSuperAdmin)
	tk := createTicket(t, newTicketService(db), "s@uni.edu")
	assert.Nil(t, tk.PendingTransferToID)
}

func TestCreateTicketValidation(t *testing.T) {
	s := newTicketService(newTestDB(t))
	cases := map[string]CreateTicketInput{
		"missing email":    {WhatsappNumber: "+1555"},
		"malformed email":  {Email: "not-an-email", WhatsappNumber: "+1555"},
		"display name":     {Email: "Bob <bob@x.com>", WhatsappNumber: "+1555"},
		"missing whatsapp": {Email: "s@uni.edu", WhatsappNumber: "   "},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.Create(context.Background(), in)
			require.Error(t, err)
			assert.Equal(t, errs.KindValidation, errs.KindOf(err))
		})
	}
}

func TestLock(t *testing.T) {
	db := newTestDB(t)
	ana := seedAdmin(t, db, "ana", model.RoleAdmin)
	ben := seedAdmin(t, db, "ben", model.RoleAdmin)
	s := newTicketService(db)
	ctx := context.Background()

	tk := createTicket(t, s, "s@uni.edu")
	require.Equal(t, ana.ID, *tk.PendingTransferToID)

	locked, err := s.Lock(ctx, tk.ID, principal(ben))
	require.NoError(t, err)
	assert.Equal(t, model.TicketStatusInProgress, locked.Status)
	require.NotNil(t, locked.ResolvedByID)
	assert.Equal(t, ben.ID, *locked.ResolvedByID)
	assert.Nil(t, locked.PendingTransferToID, "locking clears the inbox offer")
	require.NotNil(t, locked.ResolvedBy)
	assert.Equal(t, "ben", locked.ResolvedBy.Name)

	_, err = s.Lock(ctx, tk.ID, principal(ana))
	assert.ErrorIs(t, err, errs.ErrTicketNotOpen)

	_, err = s.Lock(ctx, uuid.NewString(), principal(ana))
	assert.ErrorIs(t, err, errs.ErrTicketNotFound)

	_, err = s.Lock(ctx, "42", principal(ana))
	assert.ErrorIs(t, err, errs.ErrTicketNotFound)
}

func TestLockIsExclusiveUnderContention(t *testing.T) {
	db := newTestDB(t)
	var admins []*model.Admin
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		admins = append(admins, seedAdmin(t, db, name, model.RoleAdmin))
	}
	s := newTicketService(db)
	tk := createTicket(t, s, "s@uni.edu")

	var wins atomic.Int32
	var wg sync.WaitGroup
	for _, a := range admins {
		wg.Add(1)
		go func(a *model.Admin) {
			defer wg.Done()
			if _, err := s.Lock(context.Background(), tk.ID, principal(a)); err == nil {
				wins.Add(1)
			} else {
				assert.ErrorIs(t, err, errs.ErrTicketNotOpen)
			}
		}(a)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestResolve(t *testing.T) {
	db := newTestDB(t)
	ana := seedAdmin(t, db, "ana", model.RoleAdmin)
	ben := seedAdmin(t, db, "ben", model.RoleAdmin)
	s := newTicketService(db)
	ctx := context.Background()

	tk := createTicket(t, s, "s@uni.edu")
	_, err := s.Resolve(ctx, tk.ID, principal(ana), "done")
	assert.ErrorIs(t, err, errs.ErrTicketNotInProgress)

	_, err = s.Lock(ctx, tk.ID, principal(ana))
	require.NoError(t, err)

	_, err = s.Resolve(ctx, tk.ID, principal(ben), "done")
	assert.ErrorIs(t, err, errs.ErrNotTicketHolder)

	resolved, err := s.Resolve(ctx, tk.ID, principal(ana), "  reset the portal password ")
	require.NoError(t, err)
	assert.Equal(t, model.TicketStatusResolved, resolved.Status)
	assert.Equal(t, "reset the portal password", resolved.AdminRemark)
	require.NotNil(t, resolved.ResolvedAt)
	assert.True(t, resolved.ResolvedAt.Equal(s.now()))

	var got model.Admin
	require.NoError(t, db.First(&got, ana.ID).Error)
	assert.Equal(t, int64(1), got.QueriesResolved)

	_, err = s.Resolve(ctx, tk.ID, principal(ana), "again")
	assert.ErrorIs(t, err, errs.ErrTicketResolved)
	require.NoError(t, db.First(&got, ana.ID).Error)
	assert.Equal(t, int64(1), got.QueriesResolved, "a failed resolve must not count")
}

func TestResolveClearsPendingTransfer(t *testing.T) {
	db := newTestDB(t)
	ana := seedAdmin(t, db, "ana", model.RoleAdmin)
	ben := seedAdmin(t, db, "ben", model.RoleAdmin)
	s := newTicketService(db)
	ctx := context.Background()

	tk := createTicket(t, s, "s@uni.edu")
	_, err := s.Lock(ctx, tk.ID, principal(ana))
	require.NoError(t, err)
	_, err = s.InitiateTransfer(ctx, tk.ID, principal(ana), ben.ID)
	require.NoError(t, err)

	resolved, err := s.Resolve(ctx, tk.ID, principal(ana), "")
	require.NoError(t, err)
	assert.Nil(t, resolved.PendingTransferToID)

	_, err = s.AcceptTransfer(ctx, tk.ID, principal(ben))
	assert.ErrorIs(t, err, errs.ErrTransferNotForYou)
}

func TestTransferHandOff(t *testing.T) {
	db := newTestDB(t)
	ana := seedAdmin(t, db, "ana", model.RoleAdmin)
	ben := seedAdmin(t, db, "ben", model.RoleAdmin)
	cat := seedAdmin(t, db, "cat", model.RoleAdmin)
	s := newTicketService(db)
	ctx := context.Background()

	tk := createTicket(t, s, "s@uni.edu")
	_, err := s.InitiateTransfer(ctx, tk.ID, principal(ana), ben.ID)
	assert.Equal(t, errs.KindConflict, errs.KindOf(err), "open tickets cannot be transferred")

	_, err = s.Lock(ctx, tk.ID, principal(ana))
	require.NoError(t, err)

	_, err = s.InitiateTransfer(ctx, tk.ID, principal(cat), ben.ID)
	assert.ErrorIs(t, err, errs.ErrNotTicketHolder)

	_, err = s.InitiateTransfer(ctx, tk.ID, principal(ana), ana.ID)
	assert.ErrorIs(t, err, errs.ErrAlreadyHeldByTarget)

	offered, err := s.InitiateTransfer(ctx, tk.ID, principal(ana), cat.ID)
	require.NoError(t, err)
	assert.Equal(t, cat.ID, *offered.PendingTransferToID)

	offered, err = s.InitiateTransfer(ctx, tk.ID, principal(ana), ben.ID)
	require.NoError(t, err)
	assert.Equal(t, ben.ID, *offered.PendingTransferToID, "a new offer replaces the old one")
	assert.Equal(t, ana.ID, *offered.ResolvedByID, "offering does not move ownership")

	_, err = s.AcceptTransfer(ctx, tk.ID, principal(cat))
	assert.ErrorIs(t, err, errs.ErrTransferNotForYou)

	accepted, err := s.AcceptTransfer(ctx, tk.ID, principal(ben))
	require.NoError(t, err)
	assert.Equal(t, model.TicketStatusInProgress, accepted.Status)
	assert.Equal(t, ben.ID, *accepted.ResolvedByID)
	require.NotNil(t, accepted.ForwardedByID)
	assert.Equal(t, ana.ID, *accepted.ForwardedByID)
	assert.Nil(t, accepted.PendingTransferToID)

	_, err = s.AcceptTransfer(ctx, tk.ID, principal(ben))
	assert.ErrorIs(t, err, errs.ErrTransferNotForYou, "accept is not repeatable")
}

func TestRejectTransferKeepsOwner(t *testing.T) {
	db := newTestDB(t)
	ana := seedAdmin(t, db, "ana", model.RoleAdmin)
	ben := seedAdmin(t, db, "ben", model.RoleAdmin)
	s := newTicketService(db)
	ctx := context.Background()

	tk := createTicket(t, s, "s@uni.edu")
	_, err := s.Lock(ctx, tk.ID, principal(ana))
	require.NoError(t, err)
	_, err = s.InitiateTransfer(ctx, tk.ID, principal(ana), ben.ID)
	require.NoError(t, err)

	_, err = s.RejectTransfer(ctx, tk.ID, principal(ana))
	assert.ErrorIs(t, err, errs.ErrTransferNotForYou)

	rejected, err := s.RejectTransfer(ctx, tk.ID, principal(ben))
	require.NoError(t, err)
	assert.Nil(t, rejected.PendingTransferToID)
	assert.Equal(t, ana.ID, *rejected.ResolvedByID)
	assert.Nil(t, rejected.ForwardedByID)
	assert.Equal(t, model.TicketStatusInProgress, rejected.Status)
}

func TestSuperAdminMayTransferAnyTicket(t *testing.T) {
	db := newTestDB(t)
	ana := seedAdmin(t, db, "ana", model.RoleAdmin)
	ben := seedAdmin(t, db, "ben", model.RoleAdmin)
	root := seedAdmin(t, db, "root", model.RoleSuperAdmin)
	s := newTicketService(db)
	ctx := context.Background()

	tk := createTicket(t, s, "s@uni.edu")
	_, err := s.Lock(ctx, tk.ID, principal(ana))
	require.NoError(t, err)

	offered, err := s.InitiateTransfer(ctx, tk.ID, principal(root), ben.ID)
	require.NoError(t, err)
	assert.Equal(t, ben.ID, *offered.PendingTransferToID)
}

func TestInitiateTransferTarget(t *testing.T) {
	db := newTestDB(t)
	ana := seedAdmin(t, db, "ana", model.RoleAdmin)
	s := newTicketService(db)
	ctx := context.Background()
	tk := createTicket(t, s, "s@uni.edu")
	_, err := s.Lock(ctx, tk.ID, principal(ana))
	require.NoError(t, err)

	_, err = s.InitiateTransfer(ctx, tk.ID, principal(ana), 0)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	_, err = s.InitiateTransfer(ctx, tk.ID, principal(ana), 9999)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestAcceptPreassignedTicketClaimsIt(t *testing.T) {
	db := newTestDB(t)
	ana := seedAdmin(t, db, "ana", model.RoleAdmin)
	s := newTicketService(db)

	tk := createTicket(t, s, "s@uni.edu")
	claimed, err := s.AcceptTransfer(context.Background(), tk.ID, principal(ana))
	require.NoError(t, err)
	assert.Equal(t, model.TicketStatusInProgress, claimed.Status)
	assert.Equal(t, ana.ID, *claimed.ResolvedByID)
	assert.Nil(t, claimed.ForwardedByID)
}

func TestRejectPreassignedTicketLeavesItOpen(t *testing.T) {
	db := newTestDB(t)
	ana := seedAdmin(t, db, "ana", model.RoleAdmin)
	s := newTicketService(db)

	tk := createTicket(t, s, "s@uni.edu")
	rejected, err := s.RejectTransfer(context.Background(), tk.ID, principal(ana))
	require.NoError(t, err)
	assert.Equal(t, model.TicketStatusOpen, rejected.Status)
	assert.Nil(t, rejected.PendingTransferToID)
	assert.Nil(t, rejected.ResolvedByID)
}

func resolvedTicket(t *testing.T, s *TicketService, holder *model.Admin, email string) *model.Ticket {
	t.Helper()
	ctx := context.Background()
	tk := createTicket(t, s, email)
	_, err := s.Lock(ctx, tk.ID, principal(holder))
	require.NoError(t, err)
	tk, err = s.Resolve(ctx, tk.ID, principal(holder), "fixed")
	require.NoError(t, err)
	return tk
}

func TestSubmitFeedback(t *testing.T) {
	db := newTestDB(t)
	ana := seedAdmin(t, db, "ana", model.RoleAdmin)
	s := newTicketService(db)
	ctx := context.Background()

	open := createTicket(t, s, "s@uni.edu")
	_, err := s.SubmitFeedback(ctx, open.ID, clientOf(open), 5, "")
	assert.ErrorIs(t, err, errs.ErrTicketNotResolved)

	first := resolvedTicket(t, s, ana, "s@uni.edu")
	stranger := createTicket(t, s, "other@uni.edu")

	_, err = s.SubmitFeedback(ctx, first.ID, clientOf(stranger), 5, "")
	assert.ErrorIs(t, err, errs.ErrNotTicketRequester)

	_, err = s.SubmitFeedback(ctx, first.ID, clientOf(first), 6, "")
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	_, err = s.SubmitFeedback(ctx, first.ID, clientOf(first), 0, "")
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	rated, err := s.SubmitFeedback(ctx, first.ID, clientOf(first), 4, " quick fix ")
	require.NoError(t, err)
	require.NotNil(t, rated.UserRating)
	assert.Equal(t, 4, *rated.UserRating)
	require.NotNil(t, rated.UserFeedback)
	assert.Equal(t, "quick fix", *rated.UserFeedback)
	require.NotNil(t, rated.FeedbackAt)

	_, err = s.SubmitFeedback(ctx, first.ID, clientOf(first), 1, "")
	assert.ErrorIs(t, err, errs.ErrFeedbackExists)

	second := resolvedTicket(t, s, ana, "s@uni.edu")
	_, err = s.SubmitFeedback(ctx, second.ID, clientOf(second), 3, "")
	require.NoError(t, err)

	var got model.Admin
	require.NoError(t, db.First(&got, ana.ID).Error)
	require.NotNil(t, got.AverageRating)
	assert.InDelta(t, 3.5, *got.AverageRating, 1e-9)
	assert.Equal(t, int64(2), got.QueriesResolved)
}

func TestAverageRatingTracksEveryRating(t *testing.T) {
	db := newTestDB(t)
	ana := seedAdmin(t, db, "ana", model.RoleAdmin)
	s := newTicketService(db)
	ctx := context.Background()

	average := func() float64 {
		t.Helper()
		var got model.Admin
		require.NoError(t, db.First(&got, ana.ID).Error)
		require.NotNil(t, got.AverageRating)
		return *got.AverageRating
	}

	for _, step := range []struct {
		rating int
		want   float64
	}{
		{4, 4.0},
		{5, 4.5},
		{3, 4.0},
	} {
		tk := resolvedTicket(t, s, ana, "s@uni.edu")
		_, err := s.SubmitFeedback(ctx, tk.ID, clientOf(tk), step.rating, "")
		require.NoError(t, err)
		assert.InDelta(t, step.want, average(), 1e-9, "after rating %d", step.rating)
	}
}

func TestGetByID(t *testing.T) {
	db := newTestDB(t)
	ana := seedAdmin(t, db, "ana", model.RoleAdmin)
	s := newTicketService(db)

	tk := createTicket(t, s, "s@uni.edu")
	got, err := s.GetByID(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, tk.ID, got.ID)
	require.NotNil(t, got.User)
	assert.Equal(t, "s@uni.edu", got.User.Email)
	require.NotNil(t, got.PendingTransferTo)
	assert.Equal(t, ana.ID, got.PendingTransferTo.ID)

	_, err = s.GetByID(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, errs.ErrTicketNotFound)
}

func setCreatedAt(t *testing.T, s *TicketService, id string, at time.Time) {
	t.Helper()
	require.NoError(t, s.db.Model(&model.Ticket{}).Where("id = ?", id).UpdateColumn("created_at", at).Error)
}
