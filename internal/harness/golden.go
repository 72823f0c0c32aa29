package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/docsync/internal/props"
)

// Snapshot renders the deterministic part of a result as canonical JSON.
// Pass and Errors are left out; a golden file records behavior, not
// whether the expectations of the day held.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	outcomes := make(props.Array, len(result.Outcomes))
	for i, o := range result.Outcomes {
		obj := props.Object{
			"doc":     props.String(o.Doc),
			"outcome": props.String(o.Outcome),
		}
		if o.Code != "" {
			obj["code"] = props.String(o.Code)
		}
		outcomes[i] = obj
	}

	documents := make(props.Array, len(result.Documents))
	for i, d := range result.Documents {
		leaves := make(props.Array, len(d.Leaves))
		for j, l := range d.Leaves {
			leaf := props.Object{
				"generation": props.Int(l.Generation),
				"properties": l.Properties,
			}
			if l.Deleted {
				leaf["deleted"] = props.Bool(true)
			}
			leaves[j] = leaf
		}
		documents[i] = props.Object{
			"id":     props.String(d.ID),
			"leaves": leaves,
		}
	}

	return props.MarshalCanonical(props.Object{
		"scenario":  props.String(scenarioName),
		"outcomes":  outcomes,
		"documents": documents,
	})
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
