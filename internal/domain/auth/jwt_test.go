package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "medstock/internal/core/context"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("secret"))

	token, expiresAt, err := svc.GenerateAccessToken(appctx.UserContext{
		UserID:    "nurse-1",
		TenantID:  "tenant-1",
		CompanyID: "company-1",
		Roles:     []string{"nurse"},
	})
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	user, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "nurse-1", user.UserID)
	assert.Equal(t, "tenant-1", user.TenantID)
	assert.Equal(t, "company-1", user.CompanyID)
	assert.Equal(t, []string{"nurse"}, user.Roles)
}

func TestJWTService_RejectsWrongSecret(t *testing.T) {
	issuer := NewJWTService(DefaultJWTConfig("other"))
	token, _, err := issuer.GenerateAccessToken(appctx.UserContext{UserID: "u", TenantID: "t", CompanyID: "c"})
	require.NoError(t, err)

	_, err = NewJWTService(DefaultJWTConfig("secret")).ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTService_RejectsMissingCompany(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("secret"))
	token, _, err := svc.GenerateAccessToken(appctx.UserContext{UserID: "u", TenantID: "t"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTService_RejectsExpired(t *testing.T) {
	cfg := DefaultJWTConfig("secret")
	cfg.AccessTokenTTL = -time.Minute
	svc := NewJWTService(cfg)

	token, _, err := svc.GenerateAccessToken(appctx.UserContext{UserID: "u", TenantID: "t", CompanyID: "c"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}
