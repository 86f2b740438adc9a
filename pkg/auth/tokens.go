package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/idmkit/credential/pkg/domain"
)

// Default token lifetimes
const (
	DefaultVerificationTokenTTL = 24 * time.Hour
	DefaultResetTokenTTL        = 1 * time.Hour
	DefaultMFASessionTTL        = 5 * time.Minute
	DefaultAccessTokenTTL       = 15 * time.Minute
	DefaultRefreshTokenTTL      = 7 * 24 * time.Hour
)

// TokenConfig holds token service configuration.
type TokenConfig struct {
	JWTSecret            []byte
	Issuer               string
	VerificationTokenTTL time.Duration
	ResetTokenTTL        time.Duration
	MFASessionTTL        time.Duration
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
}

// TokenService mints the credential's tokens. Verification and reset
// tokens are opaque random values; MFA session and access tokens are
// HS256 JWTs. It implements domain.TokenService.
type TokenService struct {
	config TokenConfig
}

// NewTokenService creates a token service, filling in default TTLs.
func NewTokenService(config TokenConfig) *TokenService {
	if config.VerificationTokenTTL == 0 {
		config.VerificationTokenTTL = DefaultVerificationTokenTTL
	}
	if config.ResetTokenTTL == 0 {
		config.ResetTokenTTL = DefaultResetTokenTTL
	}
	if config.MFASessionTTL == 0 {
		config.MFASessionTTL = DefaultMFASessionTTL
	}
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if config.RefreshTokenTTL == 0 {
		config.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	return &TokenService{config: config}
}

// MintVerificationToken mints a registration verification token.
func (s *TokenService) MintVerificationToken(userID uuid.UUID) (domain.Token, error) {
	return s.mintOpaque(s.config.VerificationTokenTTL)
}

// MintResetToken mints a password reset token.
func (s *TokenService) MintResetToken(userID uuid.UUID) (domain.Token, error) {
	return s.mintOpaque(s.config.ResetTokenTTL)
}

func (s *TokenService) mintOpaque(ttl time.Duration) (domain.Token, error) {
	raw, err := generateSecureToken()
	if err != nil {
		return domain.Token{}, err
	}
	return domain.Token{Value: raw, ExpiresAt: time.Now().Add(ttl)}, nil
}

// SessionClaims are the claims carried by MFA session and access tokens.
type SessionClaims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope,omitempty"`
}

const (
	scopeMFASession = "mfa_session"
	scopeAccess     = "access"
	scopeRefresh    = "refresh"
)

// MintMFASessionToken mints the short-lived JWT that scopes
// authenticator operations to one login attempt.
func (s *TokenService) MintMFASessionToken(userID uuid.UUID) (domain.Token, error) {
	return s.mintJWT(userID, scopeMFASession, s.config.MFASessionTTL)
}

// MintAccessToken mints a full access token, issued only after the
// password (and, when MFA is enabled, a second factor) has verified.
func (s *TokenService) MintAccessToken(userID uuid.UUID) (domain.Token, error) {
	return s.mintJWT(userID, scopeAccess, s.config.AccessTokenTTL)
}

// MintRefreshToken mints a refresh token alongside an access token.
func (s *TokenService) MintRefreshToken(userID uuid.UUID) (domain.Token, error) {
	return s.mintJWT(userID, scopeRefresh, s.config.RefreshTokenTTL)
}

func (s *TokenService) mintJWT(userID uuid.UUID, scope string, ttl time.Duration) (domain.Token, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		Scope: scope,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.config.JWTSecret)
	if err != nil {
		return domain.Token{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return domain.Token{Value: signed, ExpiresAt: expiresAt}, nil
}

// ParseToken validates a JWT minted by this service and returns its
// claims.
func (s *TokenService) ParseToken(raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.config.JWTSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	return claims, nil
}

// generateSecureToken generates a cryptographically secure random token.
func generateSecureToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
