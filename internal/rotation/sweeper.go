package rotation

import (
	"github.com/go-co-op/gocron/v2"
)

// Token rows would otherwise live in the database forever. The sweep keeps
// rows for the policy's retention period past expiry so reuse of a recently
// expired token still hits a row and can be detected.
func RegisterRetentionSweeper(scheduler gocron.Scheduler, c *Coordinator) {
	_, _ = scheduler.NewJob(
		gocron.CronJob(
			// 4am Daily
			"0 4 * * *",
			false,
		),
		gocron.NewTask(
			func() {
				cutoff := c.clock.Now().Add(-c.policy.RetentionPeriod())
				deleted, err := c.Cleanup(cutoff)
				if err != nil {
					// Next scheduled run retries.
					logger.Error().Err(err).Msg("refresh token sweep failed")
					return
				}
				logger.Info().Int64("deleted", deleted).Msg("purged expired refresh tokens")
			},
		),
	)
}
