package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRefreshTokenState(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	usedAt := now.Add(-time.Minute)

	tests := []struct {
		name  string
		token RefreshToken
		want  TokenState
	}{
		{
			name:  "valid",
			token: RefreshToken{ExpiresAt: now.Add(time.Hour)},
			want:  TokenValid,
		},
		{
			name:  "used",
			token: RefreshToken{ExpiresAt: now.Add(time.Hour), Used: true, UsedAt: &usedAt},
			want:  TokenUsed,
		},
		{
			name:  "revoked",
			token: RefreshToken{ExpiresAt: now.Add(time.Hour), Revoked: true},
			want:  TokenRevoked,
		},
		{
			name:  "expired",
			token: RefreshToken{ExpiresAt: now.Add(-time.Second)},
			want:  TokenExpired,
		},
		{
			name:  "expires exactly now",
			token: RefreshToken{ExpiresAt: now},
			want:  TokenExpired,
		},
		{
			// Used wins over everything: consumption is terminal.
			name:  "used then revoked stays used",
			token: RefreshToken{ExpiresAt: now.Add(-time.Hour), Used: true, Revoked: true},
			want:  TokenUsed,
		},
		{
			name:  "revoked and expired reports revoked",
			token: RefreshToken{ExpiresAt: now.Add(-time.Hour), Revoked: true},
			want:  TokenRevoked,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.token.State(now))
			assert.Equal(t, tt.want == TokenValid, tt.token.Valid(now))
		})
	}
}

func TestTokenStateString(t *testing.T) {
	assert.Equal(t, "valid", TokenValid.String())
	assert.Equal(t, "used", TokenUsed.String())
	assert.Equal(t, "revoked", TokenRevoked.String())
	assert.Equal(t, "expired", TokenExpired.String())
}
