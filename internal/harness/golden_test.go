package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/props"
)

func TestGolden_Scenarios(t *testing.T) {
	for _, name := range []string{"winner_longest_branch", "inventory", "tombstones"} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestGolden_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/inventory.yaml")
	require.NoError(t, err)

	var first []byte
	for i := 0; i < 3; i++ {
		result, err := Run(scenario)
		require.NoError(t, err)
		data, err := Snapshot(scenario.Name, result)
		require.NoError(t, err)
		if first == nil {
			first = data
			continue
		}
		assert.Equal(t, string(first), string(data), "run %d differs", i)
	}
}

func TestSnapshot_Format(t *testing.T) {
	result := NewResult()
	result.Outcomes = []OutcomeEvent{
		{Doc: "a", Outcome: OutcomeFailed, Code: "RESOLUTION_CALLBACK_ERROR"},
	}
	result.Documents = []DocumentState{{
		ID: "a",
		Leaves: []LeafState{
			{Generation: 2, Deleted: true, Properties: props.Object{}},
		},
	}}

	data, err := Snapshot("fmt", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"documents":[{"id":"a","leaves":[{"deleted":true,"generation":2,"properties":{}}]}],`+
			`"outcomes":[{"code":"RESOLUTION_CALLBACK_ERROR","doc":"a","outcome":"failed"}],"scenario":"fmt"}`,
		string(data))
}
