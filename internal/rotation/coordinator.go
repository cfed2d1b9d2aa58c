// Package rotation implements refresh-token rotation with family-scoped
// theft detection. Every login starts a token family; each refresh consumes
// the presented token and mints a successor in the same family. Reuse of a
// consumed token, or any other compromise signal, burns the whole family.
package rotation

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/finnvold/refreshguard/internal/gormw"
	"github.com/finnvold/refreshguard/internal/models"
	"github.com/finnvold/refreshguard/internal/storage"
)

var (
	logger = log.With().Str("component", "rotation").Logger()
)

// AccessTokenIssuer mints the short-lived access token returned alongside
// the rotated refresh token. Implementations must not touch the store: the
// coordinator calls Issue inside the rotation transaction. Issuer failures
// are infrastructure errors, not security events.
type AccessTokenIssuer interface {
	Issue(user *models.User) (string, error)
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Coordinator is the transactional orchestrator of the rotate-or-reject
// protocol. All detection runs here; the risk evaluator only reads.
type Coordinator struct {
	db     *gormw.DB
	issuer AccessTokenIssuer
	policy *Policy
	risk   *RiskEvaluator
	clock  clockwork.Clock

	revoked *revokedFamilyCache
}

// NewCoordinator applies policy defaults in place. A nil clock means wall
// clock.
func NewCoordinator(db *gormw.DB, issuer AccessTokenIssuer, policy *Policy, clock clockwork.Clock) *Coordinator {
	policy.applyDefaults()
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Coordinator{
		db:      db,
		issuer:  issuer,
		policy:  policy,
		risk:    NewRiskEvaluator(policy),
		clock:   clock,
		revoked: newRevokedFamilyCache(policy.RefreshTokenTTLDuration()),
	}
}

// Login starts a brand-new token family for the user and returns the raw
// refresh token. Called only after the caller has authenticated the user.
func (c *Coordinator) Login(userID uint, clientIP, userAgent string) (string, error) {
	if _, err := storage.GetUserByID(c.db, userID); err != nil {
		return "", fmt.Errorf("failed to resolve user %d: %w", userID, err)
	}

	raw, err := NewRawToken()
	if err != nil {
		return "", err
	}

	now := c.clock.Now()
	token := &models.RefreshToken{
		ID:        uuid.New().String(),
		TokenHash: HashToken(raw),
		UserID:    userID,
		FamilyID:  uuid.New().String(),
		CreatedAt: now,
		ExpiresAt: now.Add(c.policy.RefreshTokenTTLDuration()),
		IPAddress: clientIP,
		UserAgent: userAgent,
	}

	if err := storage.AddRefreshToken(c.db, token); err != nil {
		return "", err
	}
	return raw, nil
}

// Refresh exchanges a raw refresh token for a new access token plus a
// successor refresh token in the same family. On any compromise signal the
// family is revoked and the revocation is committed even though the call
// fails; rotation writes are never persisted on a failed call.
func (c *Coordinator) Refresh(rawToken, clientIP, userAgent string) (*TokenPair, error) {
	tokenHash := HashToken(rawToken)

	var (
		pair   *TokenPair
		secErr error
	)

	// Returning nil after a theft response commits the family revocation
	// while the refresh itself still fails via secErr.
	err := c.db.Transaction(func(tx *gormw.DB) error {
		now := c.clock.Now()

		token, err := storage.GetRefreshTokenByHash(tx, tokenHash)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Unknown and retention-deleted tokens present identically.
				secErr = ErrInvalidToken
				return nil
			}
			return err
		}

		if c.revoked.Contains(token.FamilyID) {
			// Family already burned; the rows are revoked, skip the queries.
			secErr = ErrSecurityViolation
			return nil
		}

		switch token.State(now) {
		case models.TokenUsed:
			// Someone is replaying a consumed token. The legitimate holder
			// moved on to the successor, so this is a direct theft signal.
			secErr = c.theftResponse(tx, token, "consumed token replayed")
			return nil
		case models.TokenRevoked, models.TokenExpired:
			secErr = ErrInvalidToken
			return nil
		}

		validTokens, err := storage.ListValidFamilyTokens(tx, token.FamilyID, now)
		if err != nil {
			return err
		}
		recentCount, err := storage.CountFamilyCreatedSince(tx, token.FamilyID, now.Add(-c.policy.RapidGenerationWindowDuration()))
		if err != nil {
			return err
		}
		if c.risk.FamilyCompromised(validTokens, recentCount) {
			secErr = c.theftResponse(tx, token, "family compromised")
			return nil
		}

		familySize, err := storage.CountFamilyTokens(tx, token.FamilyID)
		if err != nil {
			return err
		}
		if c.risk.Suspicious(token, clientIP, userAgent, familySize) {
			secErr = c.theftResponse(tx, token, "suspicious refresh")
			return nil
		}

		sessions, err := storage.CountValidUserTokens(tx, token.UserID, now)
		if err != nil {
			return err
		}
		if sessions > int64(c.policy.MaxConcurrentSessions) {
			if err := c.revokeFamily(tx, token, "concurrent session limit exceeded"); err != nil {
				return err
			}
			secErr = ErrTooManySessions
			return nil
		}

		// Resolve the owning identity from the same snapshot as the
		// validity check. A vanished user invalidates the token.
		user, err := storage.GetUserByID(tx, token.UserID)
		if err != nil {
			secErr = ErrInvalidToken
			return nil
		}

		claimed, err := storage.ClaimRefreshToken(tx, token.ID, now)
		if err != nil {
			return err
		}
		if !claimed {
			// Lost the race: a concurrent request consumed this row between
			// our lookup and the conditional update. Same as a replay.
			secErr = c.theftResponse(tx, token, "concurrent reuse of refresh token")
			return nil
		}

		accessToken, err := c.issuer.Issue(user)
		if err != nil {
			return fmt.Errorf("failed to issue access token: %w", err)
		}

		raw, err := NewRawToken()
		if err != nil {
			return err
		}

		successor := &models.RefreshToken{
			ID:        uuid.New().String(),
			TokenHash: HashToken(raw),
			UserID:    token.UserID,
			FamilyID:  token.FamilyID,
			CreatedAt: now,
			ExpiresAt: now.Add(c.policy.RefreshTokenTTLDuration()),
			IPAddress: clientIP,
			UserAgent: userAgent,
		}
		if err := storage.AddRefreshToken(tx, successor); err != nil {
			return err
		}

		pair = &TokenPair{AccessToken: accessToken, RefreshToken: raw}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if secErr != nil {
		return nil, secErr
	}
	return pair, nil
}

// Logout revokes every valid token the user holds, across all families.
// Safe to call repeatedly.
func (c *Coordinator) Logout(userID uint) error {
	return storage.RevokeAllUserTokens(c.db, userID)
}

// Cleanup deletes token rows whose expiry predates the cutoff and returns
// how many were removed.
func (c *Coordinator) Cleanup(olderThan time.Time) (int64, error) {
	return storage.DeleteExpiredBefore(c.db, olderThan, c.policy.SweepBatchSize)
}

// theftResponse revokes the whole family and reports the violation. The
// caller commits the revocation; shutting down the lineage is deliberately
// wide and also signs out the legitimate user.
func (c *Coordinator) theftResponse(tx *gormw.DB, token *models.RefreshToken, reason string) error {
	if err := c.revokeFamily(tx, token, reason); err != nil {
		// Could not persist the revocation, surface as infrastructure error.
		return err
	}
	return ErrSecurityViolation
}

func (c *Coordinator) revokeFamily(tx *gormw.DB, token *models.RefreshToken, reason string) error {
	logger.Warn().
		Str("family_id", token.FamilyID).
		Uint("user_id", token.UserID).
		Str("reason", reason).
		Msg("revoking refresh token family")

	if err := storage.RevokeFamily(tx, token.FamilyID); err != nil {
		return err
	}
	c.revoked.Add(token.FamilyID, c.clock.Now())
	return nil
}
