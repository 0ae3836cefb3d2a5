package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/numrent/internal/apperrors"
	"github.com/nkiryanov/numrent/internal/repository/postgres"
	"github.com/nkiryanov/numrent/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/numrent/internal/testutil"
)

func TestService(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	tokens, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret", AccessTTL: time.Hour})
	require.NoError(t, err)

	withTx := func(t *testing.T, fn func(s *Service)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			fn(NewService(tokens, &postgres.UserRepo{DB: tx}))
		})
	}

	request := func(header string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		return r
	}

	t.Run("create user and auth", func(t *testing.T) {
		withTx(t, func(s *Service) {
			user, token, err := s.CreateUser(t.Context(), "nk")
			require.NoError(t, err)
			require.NotEmpty(t, token.Value)

			id, err := s.Auth(t.Context(), request("Bearer "+token.Value))

			require.NoError(t, err)
			require.Equal(t, user.ID, id.User.ID)
			require.False(t, id.Admin)
		})
	})

	t.Run("create user twice", func(t *testing.T) {
		withTx(t, func(s *Service) {
			_, _, err := s.CreateUser(t.Context(), "nk")
			require.NoError(t, err)

			_, _, err = s.CreateUser(t.Context(), "nk")
			require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
		})
	})

	t.Run("issue token", func(t *testing.T) {
		withTx(t, func(s *Service) {
			user, _, err := s.CreateUser(t.Context(), "nk")
			require.NoError(t, err)

			token, err := s.IssueToken(t.Context(), user.ID)
			require.NoError(t, err)
			id, err := s.Auth(t.Context(), request("Bearer "+token.Value))
			require.NoError(t, err)
			require.Equal(t, user.ID, id.User.ID)

			_, err = s.IssueToken(t.Context(), uuid.New())
			require.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})

	t.Run("admin token", func(t *testing.T) {
		withTx(t, func(s *Service) {
			token, err := tokens.Issue(uuid.Nil, true)
			require.NoError(t, err)

			id, err := s.Auth(t.Context(), request("Bearer "+token.Value))

			require.NoError(t, err)
			require.True(t, id.Admin)
			require.Equal(t, uuid.Nil, id.User.ID)
		})
	})

	t.Run("rejected", func(t *testing.T) {
		withTx(t, func(s *Service) {
			unknownUser, err := tokens.Issue(uuid.New(), false)
			require.NoError(t, err)

			for name, header := range map[string]string{
				"no header":    "",
				"not bearer":   "Basic dXNlcjpwYXNz",
				"empty bearer": "Bearer ",
				"garbage":      "Bearer not-a-token",
				"unknown user": "Bearer " + unknownUser.Value,
			} {
				_, err := s.Auth(t.Context(), request(header))
				require.ErrorIs(t, err, ErrTokenInvalid, name)
			}
		})
	})
}
