package storage

import (
	"time"

	"github.com/finnvold/refreshguard/internal/gormw"
	"github.com/finnvold/refreshguard/internal/models"
)

func AddRefreshToken(db *gormw.DB, refreshToken *models.RefreshToken) error {
	return db.Create(refreshToken).Error
}

func GetRefreshTokenByHash(db *gormw.DB, tokenHash string) (*models.RefreshToken, error) {
	o := &models.RefreshToken{}
	err := db.Where("token_hash = ?", tokenHash).First(&o).Error
	return o, err
}

// ClaimRefreshToken marks the token used, but only if no other request got
// there first. A false return with nil error means the row was already used
// or revoked when the update ran, which the caller must treat as reuse.
func ClaimRefreshToken(db *gormw.DB, id string, usedAt time.Time) (bool, error) {
	res := db.Model(&models.RefreshToken{}).
		Where("id = ? AND used = ? AND revoked = ?", id, false, false).
		Updates(map[string]interface{}{"used": true, "used_at": usedAt})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListValidFamilyTokens returns the family's unused, unrevoked, unexpired
// tokens. Under normal rotation this is a single row.
func ListValidFamilyTokens(db *gormw.DB, familyID string, now time.Time) ([]models.RefreshToken, error) {
	var tokens []models.RefreshToken
	err := db.Where("family_id = ? AND used = ? AND revoked = ? AND expires_at > ?",
		familyID, false, false, now).Find(&tokens).Error
	return tokens, err
}

// CountFamilyCreatedSince counts every token the family minted after the
// given instant, consumed ones included.
func CountFamilyCreatedSince(db *gormw.DB, familyID string, since time.Time) (int64, error) {
	var n int64
	err := db.Model(&models.RefreshToken{}).
		Where("family_id = ? AND created_at > ?", familyID, since).
		Count(&n).Error
	return n, err
}

// CountFamilyTokens returns the full lineage size regardless of state.
func CountFamilyTokens(db *gormw.DB, familyID string) (int64, error) {
	var n int64
	err := db.Model(&models.RefreshToken{}).
		Where("family_id = ?", familyID).
		Count(&n).Error
	return n, err
}

func CountValidUserTokens(db *gormw.DB, userID uint, now time.Time) (int64, error) {
	var n int64
	err := db.Model(&models.RefreshToken{}).
		Where("user_id = ? AND used = ? AND revoked = ? AND expires_at > ?",
			userID, false, false, now).
		Count(&n).Error
	return n, err
}

// RevokeFamily flags every token in the family, whatever its current state.
// Revocation is irreversible so re-running it is harmless.
func RevokeFamily(db *gormw.DB, familyID string) error {
	return db.Model(&models.RefreshToken{}).
		Where("family_id = ?", familyID).
		Update("revoked", true).Error
}

func RevokeAllUserTokens(db *gormw.DB, userID uint) error {
	return db.Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true).Error
}

// DeleteExpiredBefore removes tokens whose expiry predates the cutoff, at
// most batchSize rows per round so the sweep never holds a long write lock.
// Returns the total number of rows deleted.
func DeleteExpiredBefore(db *gormw.DB, cutoff time.Time, batchSize int) (int64, error) {
	var total int64
	for {
		var ids []string
		if err := db.Model(&models.RefreshToken{}).
			Where("expires_at < ?", cutoff).
			Limit(batchSize).
			Pluck("id", &ids).Error; err != nil {
			return total, err
		}
		if len(ids) == 0 {
			return total, nil
		}

		res := db.Where("id IN ?", ids).Delete(&models.RefreshToken{})
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
		if len(ids) < batchSize {
			return total, nil
		}
	}
}
