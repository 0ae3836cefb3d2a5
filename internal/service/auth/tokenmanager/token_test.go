package tokenmanager

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_TokenManager(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	newManager := func(t *testing.T, accessTTL time.Duration) *TokenManager {
		m, err := New(Config{SecretKey: "test-secret-key", AccessTTL: accessTTL})
		require.NoError(t, err, "token manager should be created without errors")
		return m
	}

	t.Run("new defaults", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err, "token manager should be created without errors")

		require.Equal(t, "secret", m.key, "secret key should be set")
		require.Equal(t, defaultAccessTokenTTL, m.accessTTL, "default access token TTL should be set")
		require.Equal(t, defaultSigningMethod, m.alg.Alg(), "default signing method should be set")
	})

	t.Run("new errors", func(t *testing.T) {
		_, err := New(Config{})
		require.Error(t, err, "empty secret must be rejected")

		_, err = New(Config{SecretKey: "secret", Alg: "RS256"})
		require.Error(t, err, "only HMAC algorithms are supported")
	})

	t.Run("Issue", func(t *testing.T) {
		t.Run("access claims", func(t *testing.T) {
			m := newManager(t, 15*time.Minute)

			issued, err := m.Issue(userID, false)
			require.NoError(t, err)

			token, err := jwt.ParseWithClaims(issued.Value, &AccessTokenClaims{}, func(token *jwt.Token) (any, error) {
				return []byte("test-secret-key"), nil
			})
			require.NoError(t, err)
			require.True(t, token.Valid, "access token should be valid")

			claims, ok := token.Claims.(*AccessTokenClaims)
			require.True(t, ok, "claims should be of type AccessTokenClaims")
			assert.Equal(t, userID, claims.UserID, "user ID in token should match")
			assert.False(t, claims.Admin)
			assert.NotEmpty(t, claims.ID, "token has to has jti")
			assert.WithinDuration(t, time.Now(), claims.IssuedAt.Time, time.Second, "issued at should be close to now")
			assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt.Time, time.Second)
			assert.WithinDuration(t, issued.ExpiresAt, claims.ExpiresAt.Time, 0, "expires at should match issued token")
		})

		t.Run("generate different tokens", func(t *testing.T) {
			m := newManager(t, 15*time.Minute)

			first, err := m.Issue(userID, false)
			require.NoError(t, err)
			second, err := m.Issue(userID, false)
			require.NoError(t, err)

			assert.NotEqual(t, first.Value, second.Value, "access tokens should be different")
		})
	})

	t.Run("ParseAccess", func(t *testing.T) {
		t.Run("valid token", func(t *testing.T) {
			m := newManager(t, 15*time.Minute)
			issued, err := m.Issue(userID, false)
			require.NoError(t, err)

			claims, err := m.ParseAccess(issued.Value)
			require.NoError(t, err, "valid token should be parsed without errors")
			require.Equal(t, userID, claims.UserID)
			require.False(t, claims.Admin)
		})

		t.Run("admin token", func(t *testing.T) {
			m := newManager(t, 15*time.Minute)
			issued, err := m.Issue(uuid.Nil, true)
			require.NoError(t, err)

			claims, err := m.ParseAccess(issued.Value)
			require.NoError(t, err)
			require.True(t, claims.Admin)
			require.Equal(t, uuid.Nil, claims.UserID)
		})

		t.Run("not a token", func(t *testing.T) {
			m := newManager(t, 15*time.Minute)

			_, err := m.ParseAccess("invalid token")
			require.Error(t, err, "parsing even not a token should return an error")
		})

		t.Run("other secret", func(t *testing.T) {
			other, err := New(Config{SecretKey: "other-secret"})
			require.NoError(t, err)
			issued, err := other.Issue(userID, true)
			require.NoError(t, err)

			_, err = newManager(t, 15*time.Minute).ParseAccess(issued.Value)
			require.Error(t, err, "token signed with other key must fail")
		})

		t.Run("expired token", func(t *testing.T) {
			m := newManager(t, time.Second)
			issued, err := m.Issue(userID, false)
			require.NoError(t, err)

			// Wait for the token to expire
			time.Sleep(2 * time.Second)

			_, err = m.ParseAccess(issued.Value)
			require.Error(t, err, "token has to become expired")
		})

		t.Run("not signed token", func(t *testing.T) {
			m := newManager(t, 15*time.Minute)

			// Create valid but unsigned token
			token := jwt.NewWithClaims(
				jwt.SigningMethodNone,
				AccessTokenClaims{
					RegisteredClaims: jwt.RegisteredClaims{
						ID:        uuid.NewString(),
						IssuedAt:  jwt.NewNumericDate(time.Now()),
						ExpiresAt: jwt.NewNumericDate(time.Now().Add(15 * time.Minute)),
					},
					UserID: userID,
					Admin:  true,
				},
			)
			access, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
			require.NoError(t, err)

			_, err = m.ParseAccess(access)
			require.Error(t, err, "Valid token with empty alg must fail")
		})
	})
}
