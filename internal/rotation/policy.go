package rotation

import "time"

// Policy holds the rotation and theft-detection knobs. Durations are in
// seconds except retention, which is whole days.
type Policy struct {
	// Lifetime of each refresh token in seconds.
	RefreshTokenTTL int `yaml:"refresh_token_ttl"`

	// Max valid refresh tokens a user may hold across all families.
	MaxConcurrentSessions int `yaml:"max_concurrent_sessions"`

	// Max lineage size of a family, consumed tokens included.
	MaxFamilySize int `yaml:"max_family_size"`

	// More than this many tokens minted in one family within the window
	// counts as automated churn.
	RapidGenerationThreshold int `yaml:"rapid_generation_threshold"`
	RapidGenerationWindow    int `yaml:"rapid_generation_window"`

	// How long expired rows are kept so that reuse of a recently expired
	// token is still observable. Deleting at expiry would erase the evidence.
	RetentionDays int `yaml:"retention_days"`

	// Max rows deleted per sweep round.
	SweepBatchSize int `yaml:"sweep_batch_size"`
}

func (p *Policy) applyDefaults() {
	if p.RefreshTokenTTL <= 0 {
		// 30 days.
		p.RefreshTokenTTL = 30 * 24 * 60 * 60
	}
	if p.MaxConcurrentSessions <= 0 {
		p.MaxConcurrentSessions = 5
	}
	if p.MaxFamilySize <= 0 {
		p.MaxFamilySize = 10
	}
	if p.RapidGenerationThreshold <= 0 {
		p.RapidGenerationThreshold = 3
	}
	if p.RapidGenerationWindow <= 0 {
		// 5 minutes.
		p.RapidGenerationWindow = 5 * 60
	}
	if p.RetentionDays <= 0 {
		p.RetentionDays = 30
	}
	if p.SweepBatchSize <= 0 {
		p.SweepBatchSize = 500
	}
}

func (p *Policy) RefreshTokenTTLDuration() time.Duration {
	return time.Duration(p.RefreshTokenTTL) * time.Second
}

func (p *Policy) RapidGenerationWindowDuration() time.Duration {
	return time.Duration(p.RapidGenerationWindow) * time.Second
}

func (p *Policy) RetentionPeriod() time.Duration {
	return time.Duration(p.RetentionDays) * 24 * time.Hour
}
