package harness

import (
	"fmt"

	"github.com/roach88/docsync/internal/props"
)

// EvaluateExpectations checks every expectation against result and returns
// one message per failure.
func EvaluateExpectations(result *Result, expects []Expectation) []string {
	var errs []string
	for i, e := range expects {
		if msg := evaluateExpectation(result, e); msg != "" {
			errs = append(errs, fmt.Sprintf("expect[%d] (%s): %s", i, e.Doc, msg))
		}
	}
	return errs
}

func evaluateExpectation(result *Result, e Expectation) string {
	got := result.Outcome(e.Doc)
	if got.Outcome != e.Outcome {
		return fmt.Sprintf("outcome: expected %s, got %s", e.Outcome, got.Outcome)
	}
	if e.Code != "" && got.Code != e.Code {
		return fmt.Sprintf("code: expected %s, got %q", e.Code, got.Code)
	}

	doc, ok := result.Document(e.Doc)
	if !ok {
		return "document not captured"
	}
	live := 0
	for _, l := range doc.Leaves {
		if !l.Deleted {
			live++
		}
	}
	if e.Leaves != nil && live != *e.Leaves {
		return fmt.Sprintf("leaves: expected %d, got %d", *e.Leaves, live)
	}

	if len(e.Properties) > 0 {
		if len(doc.Leaves) == 0 {
			return "properties: document has no leaves"
		}
		want, err := props.ObjectFromGo(e.Properties)
		if err != nil {
			return fmt.Sprintf("properties: %v", err)
		}
		if msg := matchSubset(doc.Leaves[0].Properties, want); msg != "" {
			return "properties: " + msg
		}
	}
	return ""
}

// matchSubset reports the first key of want whose value differs in got.
func matchSubset(got, want props.Object) string {
	for _, k := range want.SortedKeys() {
		v, ok := got[k]
		if !ok {
			return fmt.Sprintf("missing key %q", k)
		}
		if !props.Equal(v, want[k]) {
			return fmt.Sprintf("key %q: expected %s, got %s", k, render(want[k]), render(v))
		}
	}
	return ""
}

func render(v props.Value) string {
	data, err := props.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
