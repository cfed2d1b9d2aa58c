package rotation

import (
	"testing"

	"github.com/go-co-op/gocron/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRetentionSweeper(t *testing.T) {
	c, _, _, _ := setupCoordinator(t, &Policy{})

	scheduler, err := gocron.NewScheduler()
	require.NoError(t, err)
	defer scheduler.Shutdown()

	RegisterRetentionSweeper(scheduler, c)
	assert.Len(t, scheduler.Jobs(), 1)
}
