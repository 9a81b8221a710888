package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/frictionless-support/support-service/internal/model"
)

// RoleClient is the session role of a requester logged in by OTP.
const RoleClient = "client"

// Principal is the acting identity decoded from a session token.
type Principal struct {
	ID    uint64
	Role  string
	Email string
}

func (p Principal) IsAdmin() bool {
	return p.Role == string(model.RoleAdmin) || p.Role == string(model.RoleSuperAdmin)
}

func (p Principal) IsSuperAdmin() bool {
	return p.Role == string(model.RoleSuperAdmin)
}

func (p Principal) IsClient() bool {
	return p.Role == RoleClient
}

// Claims is the JWT payload. Subject holds the decimal id.
type Claims struct {
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

var ErrInvalidToken = errors.New("invalid or expired token")

// Issuer signs and verifies HS256 session tokens.
type Issuer struct {
	secret    []byte
	adminTTL  time.Duration
	clientTTL time.Duration
	now       func() time.Time
}

func NewIssuer(secret string, adminTTL, clientTTL time.Duration) *Issuer {
	return &Issuer{
		secret:    []byte(secret),
		adminTTL:  adminTTL,
		clientTTL: clientTTL,
		now:       time.Now,
	}
}

func (i *Issuer) IssueAdmin(a *model.Admin) (string, error) {
	return i.sign(a.ID, string(a.Role), "", i.adminTTL)
}

func (i *Issuer) IssueClient(u *model.User) (string, error) {
	return i.sign(u.ID, RoleClient, u.Email, i.clientTTL)
}

func (i *Issuer) sign(id uint64, role, email string, ttl time.Duration) (string, error) {
	now := i.now()
	claims := Claims{
		Role:  role,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(id, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies tokenString and returns the principal it names.
func (i *Issuer) Parse(tokenString string) (Principal, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil || !token.Valid {
		return Principal{}, ErrInvalidToken
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 || claims.Role == "" {
		return Principal{}, ErrInvalidToken
	}
	return Principal{ID: id, Role: claims.Role, Email: claims.Email}, nil
}
