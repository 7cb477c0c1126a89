package server

import (
	"fmt"
	"log/slog"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the JWT claims of an issued token. The jti identifies the
// session row that backs it.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// issueToken signs a token for user and returns it with its session.
func (a *AuthService) issueToken(user *User) (string, *Session, error) {
	now := a.clock.Now()
	session := &Session{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		ExpiresAt:      now.Add(a.securityConfig.TokenLifetime),
		LastAccessedAt: now,
		CreatedAt:      now,
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.ID,
			Subject:   user.ID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
		Role: user.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.jwtSecret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, session, nil
}

// parseToken verifies the signature, issuer and lifetime of tokenString.
func (a *AuthService) parseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			slog.Warn("Unexpected JWT signing method", "method", token.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	},
		jwt.WithIssuer(a.issuer),
		jwt.WithTimeFunc(a.clock.Now),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		slog.Debug("Failed to parse JWT token", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ID == "" || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// authenticate resolves a bearer token to its live session and active user.
func (a *AuthService) authenticate(tokenString string) (*User, *Session, error) {
	claims, err := a.parseToken(tokenString)
	if err != nil {
		return nil, nil, err
	}

	session, err := a.storage.GetSession(claims.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil || session.UserID != claims.Subject {
		return nil, nil, ErrInvalidToken
	}
	if a.clock.Now().After(session.ExpiresAt) {
		if err := a.storage.DeleteSession(session.ID); err != nil {
			slog.Error("Failed to delete expired session", "error", err)
		}
		return nil, nil, ErrInvalidToken
	}

	user, err := a.storage.GetUserByID(session.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, nil, ErrInvalidToken
	}

	if err := a.storage.TouchSession(session.ID, a.clock.Now()); err != nil {
		slog.Error("Failed to update session last accessed time", "error", err)
	}

	user.PasswordHash = ""
	return user, session, nil
}
