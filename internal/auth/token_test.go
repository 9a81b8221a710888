package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frictionless-support/support-service/internal/model"
)

func TestIssueAndParseAdmin(t *testing.T) {
	iss := NewIssuer("secret", time.Hour, 24*time.Hour)
	token, err := iss.IssueAdmin(&model.Admin{ID: 7, Role: model.RoleSuperAdmin})
	require.NoError(t, err)

	p, err := iss.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), p.ID)
	assert.True(t, p.IsAdmin())
	assert.True(t, p.IsSuperAdmin())
	assert.False(t, p.IsClient())
}

func TestIssueAndParseClient(t *testing.T) {
	iss := NewIssuer("secret", time.Hour, 24*time.Hour)
	token, err := iss.IssueClient(&model.User{ID: 3, Email: "s@x.com"})
	require.NoError(t, err)

	p, err := iss.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, Principal{ID: 3, Role: RoleClient, Email: "s@x.com"}, p)
	assert.False(t, p.IsAdmin())
}

func TestParseRejectsExpired(t *testing.T) {
	iss := NewIssuer("secret", time.Minute, time.Minute)
	start := time.Now()
	iss.now = func() time.Time { return start }
	token, err := iss.IssueAdmin(&model.Admin{ID: 1, Role: model.RoleAdmin})
	require.NoError(t, err)

	iss.now = func() time.Time { return start.Add(2 * time.Minute) }
	_, err = iss.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsForeignSecret(t *testing.T) {
	token, err := NewIssuer("one", time.Hour, time.Hour).IssueAdmin(&model.Admin{ID: 1, Role: model.RoleAdmin})
	require.NoError(t, err)

	_, err = NewIssuer("two", time.Hour, time.Hour).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewIssuer("one", time.Hour, time.Hour).Parse("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
