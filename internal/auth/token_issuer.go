// Package auth issues and checks the device tokens floor tablets present when they
// change table state.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ScopeFloorWrite allows a device to advance tables and confirm orders.
const ScopeFloorWrite = "floor:write"

var (
	errMissingSigningSecret = errors.New("signing secret must be provided")
	errMissingIssuer        = errors.New("issuer must be provided")
	errMissingAudience      = errors.New("audience must be provided")
	errNonPositiveTTL       = errors.New("token ttl must be positive")
	errMissingDeviceClaim   = errors.New("device claim must be provided")
	// ErrScopeMissing indicates a valid token that does not grant floor writes.
	ErrScopeMissing = errors.New("token does not grant floor:write")
)

// DeviceClaims are the claims carried by a device token. The registered subject
// mirrors Device.
type DeviceClaims struct {
	Device string `json:"device"`
	Scope  string `json:"scope"`
	jwt.RegisteredClaims
}

// TokenIssuerConfig configures the device token issuer.
type TokenIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenIssuer signs HS256 device tokens and validates them on mutating requests.
type TokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	clock    func() time.Time
}

// NewTokenIssuer validates cfg and constructs a TokenIssuer.
func NewTokenIssuer(cfg TokenIssuerConfig) (*TokenIssuer, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, errMissingSigningSecret
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, errMissingIssuer
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		return nil, errMissingAudience
	}
	if cfg.TokenTTL <= 0 {
		return nil, errNonPositiveTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{
		secret:   cfg.SigningSecret,
		issuer:   issuer,
		audience: audience,
		ttl:      cfg.TokenTTL,
		clock:    clock,
	}, nil
}

// IssueDeviceToken signs a floor:write token for device and returns it with its
// lifetime in seconds.
func (i *TokenIssuer) IssueDeviceToken(_ context.Context, device string) (string, int64, error) {
	device = strings.TrimSpace(device)
	if device == "" {
		return "", 0, errMissingDeviceClaim
	}
	tokenID, err := uuid.NewV7()
	if err != nil {
		return "", 0, fmt.Errorf("generate token id: %w", err)
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.ttl)
	claims := DeviceClaims{
		Device: device,
		Scope:  ScopeFloorWrite,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID.String(),
			Subject:   device,
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(i.ttl.Seconds()), nil
}

// ParseDeviceToken checks signature, issuer, audience and expiry and returns the claims.
func (i *TokenIssuer) ParseDeviceToken(tokenString string) (DeviceClaims, error) {
	var claims DeviceClaims
	_, err := jwt.ParseWithClaims(
		tokenString,
		&claims,
		func(token *jwt.Token) (interface{}, error) {
			return i.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(i.audience),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock),
	)
	if err != nil {
		return DeviceClaims{}, err
	}
	if claims.Device == "" || claims.Device != claims.Subject {
		return DeviceClaims{}, errMissingDeviceClaim
	}
	return claims, nil
}

// ValidateToken accepts only floor:write tokens and returns the device name.
func (i *TokenIssuer) ValidateToken(tokenString string) (string, error) {
	claims, err := i.ParseDeviceToken(tokenString)
	if err != nil {
		return "", err
	}
	if claims.Scope != ScopeFloorWrite {
		return "", ErrScopeMissing
	}
	return claims.Device, nil
}
