package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sorrel/pkg/models"
)

func TestContiguityCheckCleanRun(t *testing.T) {
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	check := ContiguityCheck{}

	broadcasts := []models.Broadcast{
		broadcastAt("bbc-one", base, 30*time.Minute),
		broadcastAt("bbc-one", base.Add(30*time.Minute), 30*time.Minute),
		broadcastAt("bbc-one", base.Add(time.Hour), time.Hour),
	}
	assert.NoError(t, check.Check(broadcasts))
}

func TestContiguityCheckToleratesUnsortedInput(t *testing.T) {
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	check := ContiguityCheck{}

	broadcasts := []models.Broadcast{
		broadcastAt("bbc-one", base.Add(30*time.Minute), 30*time.Minute),
		broadcastAt("bbc-one", base, 30*time.Minute),
	}
	assert.NoError(t, check.Check(broadcasts))
}

func TestContiguityCheckRejectsOverlap(t *testing.T) {
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	check := ContiguityCheck{MaxGap: time.Hour}

	broadcasts := []models.Broadcast{
		broadcastAt("bbc-one", base, 30*time.Minute),
		broadcastAt("bbc-one", base.Add(20*time.Minute), 30*time.Minute),
	}
	err := check.Check(broadcasts)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestContiguityCheckRejectsWideGap(t *testing.T) {
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	check := ContiguityCheck{MaxGap: time.Minute}

	broadcasts := []models.Broadcast{
		broadcastAt("bbc-one", base, 30*time.Minute),
		broadcastAt("bbc-one", base.Add(32*time.Minute), 30*time.Minute),
	}
	err := check.Check(broadcasts)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestContiguityCheckAllowsGapWithinMax(t *testing.T) {
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	check := ContiguityCheck{MaxGap: 5 * time.Minute}

	broadcasts := []models.Broadcast{
		broadcastAt("bbc-one", base, 30*time.Minute),
		broadcastAt("bbc-one", base.Add(33*time.Minute), 30*time.Minute),
	}
	assert.NoError(t, check.Check(broadcasts))
}

func TestContiguityCheckEmptyAndSingle(t *testing.T) {
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	check := ContiguityCheck{}

	assert.NoError(t, check.Check(nil))
	assert.NoError(t, check.Check([]models.Broadcast{broadcastAt("bbc-one", base, time.Hour)}))
}
