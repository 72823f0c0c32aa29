package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/docsync/internal/conflict"
	"github.com/roach88/docsync/internal/props"
	"github.com/roach88/docsync/internal/revtree"
)

// ErrManualResolution is returned for documents under the manual strategy.
var ErrManualResolution = errors.New("manual resolution required")

// Func returns the policy as a conflicts callback.
func (p *Policy) Func() conflict.ConflictsFunc {
	return func(_ context.Context, docID string, leaves []*revtree.SavedRevision) ([]*revtree.UnsavedRevision, error) {
		return Apply(p.ActionFor(docID), leaves)
	}
}

// Apply runs one action over the live leaves of a document, which are in
// winner order.
func Apply(a Action, leaves []*revtree.SavedRevision) ([]*revtree.UnsavedRevision, error) {
	if len(leaves) == 0 {
		return nil, nil
	}
	switch a.Strategy {
	case StrategyWinner, "":
		return keep(leaves, 0), nil
	case StrategyFieldMax:
		return keep(leaves, maxByField(leaves, a.Field)), nil
	case StrategyMerge:
		return merge(leaves), nil
	case StrategyManual:
		if a.Reason != "" {
			return nil, fmt.Errorf("%w: %s", ErrManualResolution, a.Reason)
		}
		return nil, ErrManualResolution
	default:
		return nil, fmt.Errorf("unknown strategy %q", a.Strategy)
	}
}

// keep tombstones every leaf except leaves[idx].
func keep(leaves []*revtree.SavedRevision, idx int) []*revtree.UnsavedRevision {
	out := make([]*revtree.UnsavedRevision, 0, len(leaves)-1)
	for i, leaf := range leaves {
		if i == idx {
			continue
		}
		tomb := leaf.CreateRevision()
		tomb.SetDeletion(true)
		out = append(out, tomb)
	}
	return out
}

func maxByField(leaves []*revtree.SavedRevision, field string) int {
	best := 0
	bestVal, bestOK := numeric(leaves[0], field)
	for i := 1; i < len(leaves); i++ {
		v, ok := numeric(leaves[i], field)
		if !ok {
			continue
		}
		if !bestOK || greater(v, bestVal) {
			best, bestVal, bestOK = i, v, true
		}
	}
	return best
}

// numeric returns the field when it holds a props.Int or props.Float.
func numeric(rev *revtree.SavedRevision, field string) (props.Value, bool) {
	v, ok := rev.Property(field)
	if !ok {
		return nil, false
	}
	switch v.(type) {
	case props.Int, props.Float:
		return v, true
	default:
		return nil, false
	}
}

// greater compares two integers exactly and anything else as float64.
func greater(a, b props.Value) bool {
	ai, aInt := a.(props.Int)
	bi, bInt := b.(props.Int)
	if aInt && bInt {
		return ai > bi
	}
	return asFloat(a) > asFloat(b)
}

func asFloat(v props.Value) float64 {
	switch n := v.(type) {
	case props.Int:
		return float64(n)
	case props.Float:
		return float64(n)
	default:
		return 0
	}
}

func merge(leaves []*revtree.SavedRevision) []*revtree.UnsavedRevision {
	merged := leaves[0].UserProperties()
	for _, leaf := range leaves[1:] {
		for k, v := range leaf.UserProperties() {
			if _, ok := merged[k]; !ok {
				merged[k] = v
			}
		}
	}

	child := leaves[0].CreateRevision()
	child.SetProperties(merged)
	return append([]*revtree.UnsavedRevision{child}, keep(leaves, 0)...)
}
