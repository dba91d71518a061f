package server

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/hearthvtt/hearth/internal/platform/errors"
)

// Participant roles a join grant can carry.
const (
	RoleGM     = "gm"
	RolePlayer = "player"
)

// joinGrantEnv holds raw env values before post-parse validation.
type joinGrantEnv struct {
	Issuer    string `env:"HEARTH_TABLE_JOIN_ISSUER"`
	Audience  string `env:"HEARTH_TABLE_JOIN_AUDIENCE"`
	PublicKey string `env:"HEARTH_TABLE_JOIN_PUBLIC_KEY"`
}

// JoinGrantConfig defines how join grants are verified.
type JoinGrantConfig struct {
	Issuer   string
	Audience string
	Key      ed25519.PublicKey
	Now      func() time.Time
}

// JoinClaims captures the validated identity a join grant asserts.
type JoinClaims struct {
	CampaignID    string
	ParticipantID string
	Role          string
	JWTID         string
	ExpiresAt     time.Time
}

// joinClaims is the internal claims type used for JWT parsing.
type joinClaims struct {
	jwt.RegisteredClaims
	CampaignID    string `json:"campaign_id"`
	ParticipantID string `json:"participant_id"`
	Role          string `json:"role"`
}

// LoadJoinGrantConfigFromEnv reads join grant verification configuration.
func LoadJoinGrantConfigFromEnv(now func() time.Time) (JoinGrantConfig, error) {
	var raw joinGrantEnv
	if err := env.Parse(&raw); err != nil {
		return JoinGrantConfig{}, fmt.Errorf("parse join grant env: %w", err)
	}
	issuer := strings.TrimSpace(raw.Issuer)
	audience := strings.TrimSpace(raw.Audience)
	publicKey := strings.TrimSpace(raw.PublicKey)
	if issuer == "" {
		return JoinGrantConfig{}, fmt.Errorf("HEARTH_TABLE_JOIN_ISSUER is required")
	}
	if audience == "" {
		return JoinGrantConfig{}, fmt.Errorf("HEARTH_TABLE_JOIN_AUDIENCE is required")
	}
	if publicKey == "" {
		return JoinGrantConfig{}, fmt.Errorf("HEARTH_TABLE_JOIN_PUBLIC_KEY is required")
	}
	keyBytes, err := decodeBase64(publicKey)
	if err != nil {
		return JoinGrantConfig{}, fmt.Errorf("decode join grant public key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return JoinGrantConfig{}, fmt.Errorf("join grant public key must be %d bytes", ed25519.PublicKeySize)
	}
	if now == nil {
		now = time.Now
	}
	return JoinGrantConfig{
		Issuer:   issuer,
		Audience: audience,
		Key:      ed25519.PublicKey(keyBytes),
		Now:      now,
	}, nil
}

// VerifyJoinGrant verifies a join grant token against the campaign the
// connection asked to join. The participant identity and role come from
// the grant itself; the campaign claim must match the join request.
func VerifyJoinGrant(grant string, campaignID string, cfg JoinGrantConfig) (JoinClaims, error) {
	grant = strings.TrimSpace(grant)
	if grant == "" {
		return JoinClaims{}, apperrors.New(apperrors.CodeJoinTokenInvalid, "join token is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.Key) != ed25519.PublicKeySize {
		return JoinClaims{}, errors.New("join grant verifier is not configured")
	}

	var parsed joinClaims
	_, err := jwt.ParseWithClaims(grant, &parsed, func(token *jwt.Token) (any, error) {
		return cfg.Key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return JoinClaims{}, mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != cfg.Issuer {
		return JoinClaims{}, apperrors.WithMetadata(
			apperrors.CodeJoinTokenMismatch,
			"join token issuer mismatch",
			map[string]string{"Field": "issuer"},
		)
	}
	if !audienceContains(parsed.Audience, cfg.Audience) {
		return JoinClaims{}, apperrors.WithMetadata(
			apperrors.CodeJoinTokenMismatch,
			"join token audience mismatch",
			map[string]string{"Field": "audience"},
		)
	}

	if parsed.ID == "" {
		return JoinClaims{}, apperrors.New(apperrors.CodeJoinTokenInvalid, "join token jti is required")
	}
	if parsed.ExpiresAt == nil {
		return JoinClaims{}, apperrors.New(apperrors.CodeJoinTokenInvalid, "join token exp is required")
	}

	now := cfg.Now().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return JoinClaims{}, apperrors.New(apperrors.CodeJoinTokenExpired, "join token is expired")
	}
	if parsed.NotBefore != nil {
		nbf := parsed.NotBefore.Time.UTC()
		if now.Before(nbf) {
			return JoinClaims{}, apperrors.New(apperrors.CodeJoinTokenInvalid, "join token not active yet")
		}
	}

	if strings.TrimSpace(parsed.CampaignID) == "" || parsed.CampaignID != campaignID {
		return JoinClaims{}, apperrors.WithMetadata(
			apperrors.CodeJoinTokenMismatch,
			"join token campaign mismatch",
			map[string]string{"Field": "campaign_id"},
		)
	}
	if strings.TrimSpace(parsed.ParticipantID) == "" {
		return JoinClaims{}, apperrors.New(apperrors.CodeJoinTokenInvalid, "join token participant is required")
	}
	switch parsed.Role {
	case RoleGM, RolePlayer:
	default:
		return JoinClaims{}, apperrors.WithMetadata(
			apperrors.CodeJoinTokenInvalid,
			"join token role is invalid",
			map[string]string{"Field": "role"},
		)
	}

	return JoinClaims{
		CampaignID:    parsed.CampaignID,
		ParticipantID: parsed.ParticipantID,
		Role:          parsed.Role,
		JWTID:         parsed.ID,
		ExpiresAt:     exp,
	}, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return apperrors.New(apperrors.CodeJoinTokenInvalid, "join token signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeJoinTokenInvalid, "join token alg is invalid")
	}
	return apperrors.New(apperrors.CodeJoinTokenInvalid, "join token is invalid")
}

// audienceContains reports whether the audience list contains the given value.
func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}

func decodeBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty base64 value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
