package claim

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/address-analyzer/internal/types"
)

const testAddress = "0x742d35cc6634c0532925a3b844bc454e4438f44e"

func stageTable(durations ...int) []types.Stage {
	stages := make([]types.Stage, len(durations))
	for i, d := range durations {
		stages[i] = types.Stage{ID: i, Label: "stage", DurationMinutes: d}
	}
	return stages
}

func TestComputeProgress_StageBoundaries(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	stages := stageTable(0, 36, 5, 31)

	at35 := ComputeProgress(testAddress, &t0, t0.Add(35*time.Minute), stages)
	assert.Equal(t, types.ClaimRunning, at35.Status)
	assert.Equal(t, 35, at35.ElapsedMinutes)
	assert.Equal(t, 72, at35.TotalMinutes)
	assert.Equal(t, 37, at35.TimeLeftMinutes)
	assert.True(t, at35.Stages[0].Completed)
	assert.False(t, at35.Stages[1].Completed)

	at36 := ComputeProgress(testAddress, &t0, t0.Add(36*time.Minute), stages)
	assert.True(t, at36.Stages[1].Completed)
	assert.False(t, at36.Stages[2].Completed)

	// partial minutes floor
	almost := ComputeProgress(testAddress, &t0, t0.Add(36*time.Minute-time.Millisecond), stages)
	assert.Equal(t, 35, almost.ElapsedMinutes)
	assert.False(t, almost.Stages[1].Completed)

	at0 := ComputeProgress(testAddress, &t0, t0, stages)
	assert.True(t, at0.Stages[0].Completed)
	assert.Equal(t, 100.0, at0.Stages[0].Percent)
}

func TestComputeProgress_Completion(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	stages := stageTable(0, 36, 5, 36)

	before := ComputeProgress(testAddress, &t0, t0.Add(76*time.Minute+59*time.Second), stages)
	assert.Equal(t, types.ClaimRunning, before.Status)
	assert.Equal(t, 1, before.TimeLeftMinutes)

	done := ComputeProgress(testAddress, &t0, t0.Add(77*time.Minute), stages)
	assert.Equal(t, types.ClaimCompleted, done.Status)
	assert.Equal(t, 0, done.TimeLeftMinutes)
	for _, s := range done.Stages {
		assert.True(t, s.Completed)
		assert.Equal(t, 100.0, s.Percent)
	}

	later := ComputeProgress(testAddress, &t0, t0.Add(5*time.Hour), stages)
	assert.Equal(t, 0, later.TimeLeftMinutes)
	assert.Equal(t, 300, later.ElapsedMinutes)
}

func TestComputeProgress_NotStarted(t *testing.T) {
	stages := stageTable(0, 36, 5, 36)
	stages[2].Completed = true

	state := ComputeProgress(testAddress, nil, time.Now(), stages)
	assert.Equal(t, types.ClaimNotStarted, state.Status)
	assert.Nil(t, state.StartTime)
	assert.Equal(t, 77, state.TimeLeftMinutes)
	for _, s := range state.Stages {
		assert.False(t, s.Completed)
	}
	assert.True(t, stages[2].Completed, "input table must not be mutated")
}

func TestComputeProgress_ClockBeforeAnchor(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	state := ComputeProgress(testAddress, &t0, t0.Add(-3*time.Minute), stageTable(0, 10))
	assert.Equal(t, 0, state.ElapsedMinutes)
	assert.Equal(t, 10, state.TimeLeftMinutes)
	assert.Equal(t, types.ClaimRunning, state.Status)
}

func TestComputeProgress_StagePercent(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	state := ComputeProgress(testAddress, &t0, t0.Add(18*time.Minute), stageTable(0, 36, 5, 36))

	require.Len(t, state.Stages, 4)
	assert.Equal(t, 50.0, state.Stages[1].Percent)
	assert.Equal(t, 0.0, state.Stages[2].Percent)
	assert.Equal(t, 0.0, state.Stages[3].Percent)
}

func TestComputeProgress_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stages := stageTable(0, 36, 5, 36)

	properties.Property("completion is monotonic in elapsed time", prop.ForAll(
		func(a, b int) bool {
			if a > b {
				a, b = b, a
			}
			early := ComputeProgress(testAddress, &t0, t0.Add(time.Duration(a)*time.Second), stages)
			late := ComputeProgress(testAddress, &t0, t0.Add(time.Duration(b)*time.Second), stages)
			for i := range stages {
				if early.Stages[i].Completed && !late.Stages[i].Completed {
					return false
				}
			}
			return early.TimeLeftMinutes >= late.TimeLeftMinutes
		},
		gen.IntRange(0, 120*60),
		gen.IntRange(0, 120*60),
	))

	properties.Property("time left never negative and sums with elapsed while running", prop.ForAll(
		func(seconds int) bool {
			s := ComputeProgress(testAddress, &t0, t0.Add(time.Duration(seconds)*time.Second), stages)
			if s.TimeLeftMinutes < 0 {
				return false
			}
			if s.Status == types.ClaimRunning {
				return s.ElapsedMinutes+s.TimeLeftMinutes == s.TotalMinutes
			}
			return s.TimeLeftMinutes == 0
		},
		gen.IntRange(0, 200*60),
	))

	properties.TestingRun(t)
}
