package rotation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/finnvold/refreshguard/internal/models"
)

func testPolicy() *Policy {
	p := &Policy{}
	p.applyDefaults()
	return p
}

func familyToken(ip, ua string) models.RefreshToken {
	return models.RefreshToken{
		FamilyID:  "fam",
		ExpiresAt: time.Now().Add(time.Hour),
		IPAddress: ip,
		UserAgent: ua,
	}
}

func TestFamilyCompromisedSingleSource(t *testing.T) {
	e := NewRiskEvaluator(testPolicy())

	valid := []models.RefreshToken{familyToken("1.1.1.1", "A")}
	assert.False(t, e.FamilyCompromised(valid, 1))

	// Several tokens from the same client are still one source.
	valid = append(valid, familyToken("1.1.1.1", "A"))
	assert.False(t, e.FamilyCompromised(valid, 2))
}

func TestFamilyCompromisedTwoSources(t *testing.T) {
	e := NewRiskEvaluator(testPolicy())

	valid := []models.RefreshToken{
		familyToken("1.1.1.1", "A"),
		familyToken("6.6.6.6", "A"),
	}
	assert.True(t, e.FamilyCompromised(valid, 2), "two live clients in one lineage is proof of theft")

	// Same IP but a different agent is also a second source.
	valid = []models.RefreshToken{
		familyToken("1.1.1.1", "A"),
		familyToken("1.1.1.1", "B"),
	}
	assert.True(t, e.FamilyCompromised(valid, 2))
}

func TestFamilyCompromisedRapidGeneration(t *testing.T) {
	e := NewRiskEvaluator(testPolicy()) // threshold 3

	valid := []models.RefreshToken{familyToken("1.1.1.1", "A")}
	assert.False(t, e.FamilyCompromised(valid, 3), "at the threshold is still fine")
	assert.True(t, e.FamilyCompromised(valid, 4))
}

func TestFamilyCompromisedEmptyFamily(t *testing.T) {
	e := NewRiskEvaluator(testPolicy())
	assert.False(t, e.FamilyCompromised(nil, 0))
}

func TestSuspiciousFamilySize(t *testing.T) {
	e := NewRiskEvaluator(testPolicy()) // max family size 10
	tok := familyToken("1.1.1.1", "A")

	assert.False(t, e.Suspicious(&tok, "1.1.1.1", "A", 10))
	assert.True(t, e.Suspicious(&tok, "1.1.1.1", "A", 11))
}

func TestSuspiciousFingerprintMismatchOnlyLogs(t *testing.T) {
	e := NewRiskEvaluator(testPolicy())
	tok := familyToken("1.1.1.1", "A")

	// Mismatched fingerprints alone never block.
	assert.False(t, e.Suspicious(&tok, "9.9.9.9", "Z", 2))
}
