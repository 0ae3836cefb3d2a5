package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/numrent/internal/apperrors"
	"github.com/nkiryanov/numrent/internal/models"
	"github.com/nkiryanov/numrent/internal/repository"
	"github.com/nkiryanov/numrent/internal/service/auth/tokenmanager"
)

var ErrTokenInvalid = errors.New("access token is missing or invalid")

type tokenManager interface {
	Issue(userID uuid.UUID, admin bool) (tokenmanager.IssuedToken, error)
	ParseAccess(access string) (tokenmanager.AccessTokenClaims, error)
}

// Identity of the request owner
type Identity struct {
	User  models.User // zero for operator tokens without user
	Admin bool
}

type Service struct {
	tokens   tokenManager
	userRepo repository.UserRepo
}

func NewService(tokens tokenManager, userRepo repository.UserRepo) *Service {
	return &Service{
		tokens:   tokens,
		userRepo: userRepo,
	}
}

// Create user and issue the first access token for it
func (s *Service) CreateUser(ctx context.Context, username string) (models.User, tokenmanager.IssuedToken, error) {
	user, err := s.userRepo.CreateUser(ctx, username)
	if err != nil {
		return user, tokenmanager.IssuedToken{}, err
	}

	token, err := s.tokens.Issue(user.ID, false)
	if err != nil {
		return user, token, fmt.Errorf("token could not generated. %w", err)
	}

	return user, token, nil
}

func (s *Service) IssueToken(ctx context.Context, userID uuid.UUID) (tokenmanager.IssuedToken, error) {
	if _, err := s.userRepo.GetUser(ctx, userID, false); err != nil {
		return tokenmanager.IssuedToken{}, err
	}

	return s.tokens.Issue(userID, false)
}

// Authenticate request by 'Authorization: Bearer <token>' header
func (s *Service) Auth(ctx context.Context, r *http.Request) (Identity, error) {
	header := r.Header.Get("Authorization")
	access, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || access == "" {
		return Identity{}, ErrTokenInvalid
	}

	claims, err := s.tokens.ParseAccess(access)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	if claims.Admin && claims.UserID == uuid.Nil {
		return Identity{Admin: true}, nil
	}

	user, err := s.userRepo.GetUser(ctx, claims.UserID, false)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return Identity{}, ErrTokenInvalid
	case err != nil:
		return Identity{}, err
	}

	return Identity{User: user, Admin: claims.Admin}, nil
}
