package icron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTriggerInfoHourly(t *testing.T) {
	ref := time.Date(2025, 3, 1, 10, 20, 0, 0, time.UTC)

	info, err := GetTriggerInfo("0 * * * *", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC), info.Next)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), info.Last)
	assert.Equal(t, 40*time.Minute, info.TimeUntilNext)
	assert.Equal(t, 20*time.Minute, info.TimeSinceLast)
}

func TestGetTriggerInfoDescriptor(t *testing.T) {
	ref := time.Date(2025, 3, 1, 10, 20, 0, 0, time.UTC)

	info, err := GetTriggerInfo("@daily", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), info.Next)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), info.Last)
}

func TestGetTriggerInfoInvalid(t *testing.T) {
	_, err := GetTriggerInfo("every now and then", time.Now())
	assert.Error(t, err)
}
