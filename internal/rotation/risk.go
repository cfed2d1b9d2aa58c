package rotation

import (
	"github.com/hashicorp/go-set/v3"

	"github.com/finnvold/refreshguard/internal/models"
)

// RiskEvaluator decides whether a family looks compromised or a refresh
// request looks suspicious. It only reads the snapshot it is handed; the
// coordinator owns all mutation.
type RiskEvaluator struct {
	policy *Policy
}

func NewRiskEvaluator(policy *Policy) *RiskEvaluator {
	return &RiskEvaluator{policy: policy}
}

// FamilyCompromised reports whether the family must be shut down:
// either two different clients hold live tokens from the same lineage at
// once, or the family minted tokens faster than any human session would.
func (e *RiskEvaluator) FamilyCompromised(validTokens []models.RefreshToken, recentCount int64) bool {
	sources := set.New[string](len(validTokens))
	for _, t := range validTokens {
		sources.Insert(t.IPAddress + "\x00" + t.UserAgent)
	}
	if sources.Size() > 1 {
		return true
	}

	return recentCount > int64(e.policy.RapidGenerationThreshold)
}

// Suspicious flags an oversized lineage. Fingerprint mismatches against the
// stored record are logged but do not block on their own; mobile clients
// change IPs constantly.
func (e *RiskEvaluator) Suspicious(token *models.RefreshToken, clientIP, userAgent string, familySize int64) bool {
	if token.IPAddress != clientIP {
		logger.Warn().
			Str("family_id", token.FamilyID).
			Str("token_ip", token.IPAddress).
			Str("client_ip", clientIP).
			Msg("refresh from different IP address")
	}
	if token.UserAgent != userAgent {
		logger.Warn().
			Str("family_id", token.FamilyID).
			Msg("refresh from different user agent")
	}

	return familySize > int64(e.policy.MaxFamilySize)
}
