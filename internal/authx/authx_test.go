package authx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, secret []byte, sub, aud string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: sub + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Audience:  jwt.ClaimStrings{aud},
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	s, err := tok.SignedString(secret)
	require.NoError(t, err)
	return s
}

type staticRoles map[string]Role

func (s staticRoles) RoleFor(_ context.Context, userID string) (Role, error) {
	if userID == "boom" {
		return "", errors.New("db down")
	}
	return s[userID], nil
}

func TestVerifier(t *testing.T) {
	v := &Verifier{Secret: testSecret}
	future := time.Now().Add(time.Hour)

	c, err := v.Verify(signToken(t, testSecret, "u1", Audience, future))
	require.NoError(t, err)
	assert.Equal(t, "u1", c.Subject)
	assert.Equal(t, "u1@example.com", c.Email)

	_, err = v.Verify(signToken(t, []byte("other"), "u1", Audience, future))
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify(signToken(t, testSecret, "u1", "anon", future))
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify(signToken(t, testSecret, "u1", Audience, time.Now().Add(-time.Minute)))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func newMiddleware() *Middleware {
	return &Middleware{
		Verifier: &Verifier{Secret: testSecret},
		Roles:    staticRoles{"admin-1": RoleAdmin, "support-1": RoleSupport},
	}
}

func serve(t *testing.T, h http.Handler, setup func(r *http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if setup != nil {
		setup(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_RequireUser(t *testing.T) {
	m := newMiddleware()
	var seen *Identity
	h := m.Authenticate(RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
	})))
	tok := signToken(t, testSecret, "u1", Audience, time.Now().Add(time.Hour))

	rec := serve(t, h, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(t, h, func(r *http.Request) { r.Header.Set("Authorization", "Bearer garbage") })
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(t, h, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) })
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "u1", seen.UserID)
	assert.False(t, seen.Staff())

	seen = nil
	rec = serve(t, h, func(r *http.Request) { r.AddCookie(&http.Cookie{Name: DefaultCookie, Value: tok}) })
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "u1", seen.UserID)
}

func TestMiddleware_RequireCapability(t *testing.T) {
	m := newMiddleware()
	h := m.Authenticate(RequireCapability(CapOrdersWrite)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))
	exp := time.Now().Add(time.Hour)

	tests := []struct {
		name string
		sub  string
		want int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"customer", "u1", http.StatusForbidden},
		{"support", "support-1", http.StatusForbidden},
		{"admin", "admin-1", http.StatusOK},
		{"role lookup error", "boom", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, h, func(r *http.Request) {
				if tt.sub != "" {
					r.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, tt.sub, Audience, exp))
				}
			})
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestIdentity_Capabilities(t *testing.T) {
	support := NewIdentity("s", "", RoleSupport)
	assert.True(t, support.Can(CapOrdersRead))
	assert.True(t, support.Can(CapOrdersNotify))
	assert.False(t, support.Can(CapOrdersWrite))

	var none *Identity
	assert.False(t, none.Can(CapOrdersRead))
	assert.False(t, NewIdentity("u", "", "").Staff())
}

func TestAdminRepo_RoleFor(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := &AdminRepo{DB: mock}

	mock.ExpectQuery("SELECT role FROM admin_users").WithArgs("a1").
		WillReturnRows(pgxmock.NewRows([]string{"role"}).AddRow("admin"))
	mock.ExpectQuery("SELECT role FROM admin_users").WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"role"}))

	role, err := repo.RoleFor(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)

	role, err = repo.RoleFor(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, Role(""), role)

	assert.NoError(t, mock.ExpectationsWereMet())
}
