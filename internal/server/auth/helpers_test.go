package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/dmitrijs2005/carenest/internal/common"
	"github.com/dmitrijs2005/carenest/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var (
	rsaOnce sync.Once
	rsaKey  *rsa.PrivateKey
)

func mustRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	rsaOnce.Do(func() {
		var err error
		rsaKey, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
	})
	return rsaKey
}

// externalToken signs claims with RS256 as an identity provider would.
func externalToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(mustRSAKey(t))
	require.NoError(t, err)
	return tok
}

// rawToken assembles a token from arbitrary header and payload JSON.
func rawToken(t *testing.T, header, payload any) string {
	t.Helper()
	enc := func(v any) string {
		if s, ok := v.(string); ok {
			return base64.RawURLEncoding.EncodeToString([]byte(s))
		}
		b, err := json.Marshal(v)
		require.NoError(t, err)
		return base64.RawURLEncoding.EncodeToString(b)
	}
	return strings.Join([]string{enc(header), enc(payload), "c2ln"}, ".")
}

// memUsers is an in-memory UserStore with the same uniqueness rules as the
// users table.
type memUsers struct {
	mu    sync.Mutex
	byID  map[string]*models.User
	calls map[string]int

	// beforeCreate runs before each Create; tests use it to simulate a
	// concurrent first contact.
	beforeCreate func()
}

func newMemUsers(users ...*models.User) *memUsers {
	m := &memUsers{byID: map[string]*models.User{}, calls: map[string]int{}}
	for _, u := range users {
		m.byID[u.ID] = u
	}
	return m
}

func (m *memUsers) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *memUsers) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

func (m *memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["GetByID"]++
	if u, ok := m.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, common.ErrorNotFound
}

func (m *memUsers) GetByExternalID(_ context.Context, ext string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["GetByExternalID"]++
	for _, u := range m.byID {
		if u.ExternalID == ext {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["GetByEmail"]++
	for _, u := range m.byID {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (m *memUsers) SetExternalID(_ context.Context, userID, ext string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["SetExternalID"]++
	u, ok := m.byID[userID]
	if !ok || u.ExternalID != "" {
		return common.ErrConflict
	}
	for _, other := range m.byID {
		if other.ExternalID == ext {
			return common.ErrConflict
		}
	}
	u.ExternalID = ext
	return nil
}

func (m *memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	if m.beforeCreate != nil {
		m.beforeCreate()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Create"]++
	for _, other := range m.byID {
		if (u.ExternalID != "" && other.ExternalID == u.ExternalID) ||
			(u.Email != "" && strings.EqualFold(other.Email, u.Email)) {
			return nil, common.ErrConflict
		}
	}
	cp := *u
	cp.ID = uuid.NewString()
	m.byID[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memUsers) put(u *models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[u.ID] = u
}
