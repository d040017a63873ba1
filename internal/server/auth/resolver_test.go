package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/carenest/internal/cachex"
	"github.com/dmitrijs2005/carenest/internal/common"
	"github.com/dmitrijs2005/carenest/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func fastHash(p []byte) ([]byte, error) { return append([]byte("hash:"), p...), nil }

func newTestResolver(users UserStore, opts ...ResolverOption) *Resolver {
	r := NewResolver(users, testSecret, opts...)
	r.hash = fastHash
	return r
}

func extClaims(sub, email string) jwt.MapClaims {
	c := jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}
	if sub != "" {
		c["sub"] = sub
	}
	if email != "" {
		c["email"] = email
	}
	return c
}

func TestResolve_Local(t *testing.T) {
	ctx := context.Background()
	users := newMemUsers(&models.User{ID: "u-a", Email: "a@example.com", Role: "client"})
	r := newTestResolver(users)

	tok, err := GenerateToken("u-a", testSecret, time.Hour)
	require.NoError(t, err)

	s, err := r.Resolve(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, "u-a", s.UserID)
	assert.Equal(t, models.RoleParent, s.Role, "stored synonyms are normalized")
	assert.Equal(t, KindLocal, s.Kind)
}

func TestResolve_LocalUserGone(t *testing.T) {
	r := newTestResolver(newMemUsers())

	tok, err := GenerateToken("ghost", testSecret, time.Hour)
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), tok)
	require.ErrorIs(t, err, common.ErrUserNotFound)
	assert.True(t, common.IsAuthentication(err))
}

func TestResolve_LocalFailures(t *testing.T) {
	users := newMemUsers(&models.User{ID: "u-a", Role: models.RoleParent})
	r := newTestResolver(users)

	expired, err := GenerateToken("u-a", testSecret, -time.Minute)
	require.NoError(t, err)
	foreign, err := GenerateToken("u-a", []byte("other"), time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"missing", "  ", common.ErrTokenMissing},
		{"not a jwt", "abc", common.ErrTokenMalformed},
		{"expired", expired, common.ErrTokenExpired},
		{"wrong secret", foreign, common.ErrTokenInvalidSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), tt.token)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, common.IsAuthentication(err))
		})
	}
}

func TestResolve_ForgedHeaderFailsClosed(t *testing.T) {
	users := newMemUsers(&models.User{ID: "u-a", Role: models.RoleParent})
	r := newTestResolver(users)

	// Claims to be HS256 but carries no valid HMAC: routed LOCAL and rejected.
	tok := rawToken(t, map[string]any{"alg": "HS256"}, map[string]any{
		"UserID": "u-a", "exp": time.Now().Add(time.Hour).Unix(),
	})
	_, err := r.Resolve(context.Background(), tok)
	require.ErrorIs(t, err, common.ErrTokenInvalidSignature)
}

func TestResolve_LocalUsesCache(t *testing.T) {
	users := newMemUsers(&models.User{ID: "u-a", Role: models.RoleCaregiver})
	cache := cachex.NewTTL[string, *models.User](time.Minute, 100)
	r := newTestResolver(users, WithUserCache(cache))

	tok, err := GenerateToken("u-a", testSecret, time.Hour)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := r.Resolve(context.Background(), tok)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, users.count("GetByID"))

	users.put(&models.User{ID: "u-a", Role: models.RoleAdmin})
	r.ForgetUser("u-a")
	s, err := r.Resolve(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, s.Role)
	assert.Equal(t, 2, users.count("GetByID"))

	r.ClearCache()
	assert.Equal(t, 0, cache.Len())
}

func TestResolve_ExternalKnownIsIdempotent(t *testing.T) {
	users := newMemUsers(&models.User{ID: "u-x", ExternalID: "ext_1", Email: "x@example.com", Role: models.RoleCaregiver})
	r := newTestResolver(users)
	tok := externalToken(t, extClaims("ext_1", "x@example.com"))

	s1, err := r.Resolve(context.Background(), tok)
	require.NoError(t, err)
	s2, err := r.Resolve(context.Background(), tok)
	require.NoError(t, err)

	assert.Equal(t, "u-x", s1.UserID)
	assert.Equal(t, s1.UserID, s2.UserID)
	assert.Equal(t, KindExternal, s1.Kind)
	assert.Equal(t, 1, users.len())
	assert.Equal(t, 0, users.count("Create"))
}

func TestResolve_ExternalBackfillsByEmail(t *testing.T) {
	users := newMemUsers(&models.User{ID: "u-l", Email: "local@example.com", Role: models.RoleParent})
	r := newTestResolver(users)
	tok := externalToken(t, extClaims("ext_9", "LOCAL@example.com"))

	s, err := r.Resolve(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "u-l", s.UserID)
	assert.Equal(t, "ext_9", s.ExternalID)

	stored, err := users.GetByID(context.Background(), "u-l")
	require.NoError(t, err)
	assert.Equal(t, "ext_9", stored.ExternalID)

	s2, err := r.Resolve(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "u-l", s2.UserID)
	assert.Equal(t, 1, users.len())
	assert.Equal(t, 1, users.count("SetExternalID"))
}

func TestResolve_ExternalEmailLinkedElsewhere(t *testing.T) {
	users := newMemUsers(&models.User{ID: "u-l", ExternalID: "ext_old", Email: "a@example.com", Role: models.RoleParent})
	r := newTestResolver(users)

	s, err := r.Resolve(context.Background(), externalToken(t, extClaims("ext_new", "a@example.com")))
	require.NoError(t, err)
	assert.Equal(t, "u-l", s.UserID)
	assert.Equal(t, 0, users.count("SetExternalID"))
	assert.Equal(t, 0, users.count("Create"))
}

func TestResolve_ExternalFirstContact(t *testing.T) {
	tests := []struct {
		name     string
		claims   jwt.MapClaims
		verifier ExternalVerifier
		wantRole models.Role
	}{
		{name: "defaults to parent", claims: extClaims("ext_new", "new@example.com"), wantRole: models.RoleParent},
		{name: "claimed synonym", claims: func() jwt.MapClaims {
			c := extClaims("ext_new", "new@example.com")
			c["role"] = "babysitter"
			return c
		}(), wantRole: models.RoleCaregiver},
		{name: "unknown role", claims: func() jwt.MapClaims {
			c := extClaims("ext_new", "new@example.com")
			c["role"] = "wizard"
			return c
		}(), wantRole: models.RoleParent},
		{name: "unverified admin claim", claims: func() jwt.MapClaims {
			c := extClaims("ext_new", "new@example.com")
			c["role"] = "admin"
			return c
		}(), wantRole: models.RoleParent},
		{name: "verified admin claim", claims: func() jwt.MapClaims {
			c := extClaims("ext_new", "new@example.com")
			c["role"] = "administrator"
			return c
		}(), verifier: verifierFunc(func(context.Context, string) error { return nil }), wantRole: models.RoleAdmin},
		{name: "subject only", claims: extClaims("ext_new", ""), wantRole: models.RoleParent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := newMemUsers()
			opts := []ResolverOption{}
			if tt.verifier != nil {
				opts = append(opts, WithExternalVerifier(tt.verifier))
			}
			r := newTestResolver(users, opts...)

			s, err := r.Resolve(context.Background(), externalToken(t, tt.claims))
			require.NoError(t, err)
			require.NotEmpty(t, s.UserID)
			assert.Equal(t, tt.wantRole, s.Role)

			stored, err := users.GetByID(context.Background(), s.UserID)
			require.NoError(t, err)
			assert.Equal(t, "ext_new", stored.ExternalID)
			assert.NotEmpty(t, stored.PasswordHash, "placeholder credential is hashed")
			assert.Equal(t, 1, users.len())
		})
	}
}

func TestResolve_ExternalUnresolved(t *testing.T) {
	r := newTestResolver(newMemUsers())
	tok := externalToken(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix(), "name": "anon"})

	_, err := r.Resolve(context.Background(), tok)
	require.ErrorIs(t, err, common.ErrExternalUserUnresolved)
	assert.True(t, common.IsAuthentication(err))
}

func TestResolve_ExternalVerifierRejects(t *testing.T) {
	r := newTestResolver(newMemUsers(), WithExternalVerifier(verifierFunc(func(context.Context, string) error {
		return errors.New("kid not found")
	})))

	_, err := r.Resolve(context.Background(), externalToken(t, extClaims("ext", "")))
	require.ErrorIs(t, err, common.ErrTokenInvalidSignature)
}

func TestResolve_StrictClassifierRejectsAmbiguous(t *testing.T) {
	r := newTestResolver(newMemUsers(), WithClassifier(Classifier{Strict: true}))
	tok := rawToken(t, map[string]any{"typ": "JWT"}, map[string]any{"sub": "s", "exp": time.Now().Add(time.Hour).Unix()})

	_, err := r.Resolve(context.Background(), tok)
	require.ErrorIs(t, err, common.ErrTokenMalformed)

	permissive := newTestResolver(newMemUsers())
	s, err := permissive.Resolve(context.Background(), tok)
	require.NoError(t, err)
	assert.NotEmpty(t, s.UserID)
}

func TestResolve_ExternalConcurrentFirstContactConverges(t *testing.T) {
	users := newMemUsers()
	r := newTestResolver(users)

	// The winner's row lands between our lookup and our insert.
	var once sync.Once
	users.beforeCreate = func() {
		once.Do(func() {
			users.put(&models.User{ID: "u-winner", ExternalID: "ext_race", Email: "race@example.com", Role: models.RoleParent})
		})
	}

	s, err := r.Resolve(context.Background(), externalToken(t, extClaims("ext_race", "race@example.com")))
	require.NoError(t, err)
	assert.Equal(t, "u-winner", s.UserID)
	assert.Equal(t, 1, users.len())
}

func TestResolve_ExternalExpired(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := newTestResolver(newMemUsers(), WithClock(func() time.Time { return now }))
	tok := externalToken(t, jwt.MapClaims{"sub": "s", "exp": now.Add(-time.Minute).Unix()})

	_, err := r.Resolve(context.Background(), tok)
	require.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestResolve_StoreErrorIsNotAuthentication(t *testing.T) {
	r := newTestResolver(failingUsers{err: errors.New("db error: connection refused")})

	_, err := r.Resolve(context.Background(), externalToken(t, extClaims("ext", "")))
	require.Error(t, err)
	assert.False(t, common.IsAuthentication(err))
}

type verifierFunc func(ctx context.Context, token string) error

func (f verifierFunc) Verify(ctx context.Context, token string) error { return f(ctx, token) }

type failingUsers struct{ err error }

func (f failingUsers) GetByID(context.Context, string) (*models.User, error) { return nil, f.err }
func (f failingUsers) GetByExternalID(context.Context, string) (*models.User, error) {
	return nil, f.err
}
func (f failingUsers) GetByEmail(context.Context, string) (*models.User, error) { return nil, f.err }
func (f failingUsers) SetExternalID(context.Context, string, string) error    { return f.err }
func (f failingUsers) Create(context.Context, *models.User) (*models.User, error) {
	return nil, f.err
}
