package tokenmanager

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultAccessTokenTTL = 24 * time.Hour
	defaultSigningMethod  = "HS256"
)

type AccessTokenClaims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"uid"`
	Admin  bool      `json:"adm,omitempty"`
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token manager with sensible default
type Config struct {
	// Secret key to sign access token
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access token lifetime
	// If not set than default is used
	AccessTTL time.Duration
}

type TokenManager struct {
	// Secret key to sign access token
	key string

	// JWT MAC (Message Authentication Code) algorithm
	alg jwt.SigningMethod

	accessTTL time.Duration
}

func New(cfg Config) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}

	alg := jwt.GetSigningMethod(cfg.Alg)
	if _, ok := alg.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unsupported signing method %q", cfg.Alg)
	}

	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = defaultAccessTokenTTL
	}

	return &TokenManager{
		key:       cfg.SecretKey,
		alg:       alg,
		accessTTL: cfg.AccessTTL,
	}, nil
}

// Issue access token for the user
// Admin tokens open the operator endpoints, userID may be uuid.Nil for them
func (m *TokenManager) Issue(userID uuid.UUID, admin bool) (IssuedToken, error) {
	now := time.Now().Truncate(time.Second)
	expiresAt := now.Add(m.accessTTL)

	token := jwt.NewWithClaims(
		m.alg,
		AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			UserID: userID,
			Admin:  admin,
		},
	)
	access, err := token.SignedString([]byte(m.key))
	if err != nil {
		return IssuedToken{}, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	return IssuedToken{Value: access, ExpiresAt: expiresAt}, nil
}

// Parse and validate access token
func (m *TokenManager) ParseAccess(access string) (AccessTokenClaims, error) {
	claims := AccessTokenClaims{}

	_, err := jwt.ParseWithClaims(
		access,
		&claims,
		func(t *jwt.Token) (any, error) {
			return []byte(m.key), nil
		},
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return claims, fmt.Errorf("error while parsing or validating token. Err: %w", err)
	}

	return claims, nil
}
