package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/roach88/docsync/internal/conflict"
	"github.com/roach88/docsync/internal/database"
	"github.com/roach88/docsync/internal/props"
	"github.com/roach88/docsync/internal/revtree"
	"github.com/roach88/docsync/internal/store"
)

// DefaultWait bounds how long Run waits for resolution outcomes.
const DefaultWait = 10 * time.Second

// Harness is the scenario execution engine.
type Harness struct {
	store  *store.Store
	logger *slog.Logger
	wait   time.Duration
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. Revision ids are
// content hashes, so identical scenarios produce identical trees.
//
// Execution flow:
//  1. Create fresh in-memory database
//  2. Compile the policy
//  3. Seed documents
//  4. Register a conflicts listener and wait for one outcome per
//     conflicted document
//  5. Capture final leaves and evaluate expectations
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a context bounding the whole execution.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(":memory:", store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	pol, err := scenario.LoadPolicy()
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}

	h := &Harness{store: st, logger: logger, wait: DefaultWait}

	for _, doc := range scenario.Documents {
		if err := h.seed(ctx, doc); err != nil {
			return nil, fmt.Errorf("failed to seed %q: %w", doc.ID, err)
		}
	}

	conflicted, err := st.ConflictedDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}

	outcomes, err := h.resolve(ctx, pol.Func(), len(conflicted))
	if err != nil {
		return nil, err
	}

	result := NewResult()
	result.Outcomes = outcomes
	for _, doc := range scenario.Documents {
		state, err := h.capture(ctx, doc.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read %q: %w", doc.ID, err)
		}
		result.Documents = append(result.Documents, state)
	}
	sort.Slice(result.Documents, func(i, j int) bool {
		return result.Documents[i].ID < result.Documents[j].ID
	})

	for _, msg := range EvaluateExpectations(result, scenario.Expect) {
		result.AddError(msg)
	}
	return result, nil
}

// seed writes one document's revision tree.
func (h *Harness) seed(ctx context.Context, doc DocumentSeed) error {
	base, err := props.ObjectFromGo(doc.Base)
	if err != nil {
		return fmt.Errorf("base: %w", err)
	}
	root, err := h.store.CreateDocument(ctx, doc.ID, base)
	if err != nil {
		return err
	}

	for i, branch := range doc.Branches {
		parent := root
		for j, edit := range branch {
			rev, err := editRevision(parent, edit)
			if err != nil {
				return fmt.Errorf("branches[%d][%d]: %w", i, j, err)
			}
			if parent, err = h.store.SaveAllowingConflict(ctx, rev); err != nil {
				return fmt.Errorf("branches[%d][%d]: %w", i, j, err)
			}
		}
	}
	h.logger.Debug("document seeded", "doc", doc.ID, "branches", len(doc.Branches))
	return nil
}

func editRevision(parent *revtree.SavedRevision, edit map[string]any) (*revtree.UnsavedRevision, error) {
	rev := parent.CreateRevision()
	if deleted, _ := edit[revtree.KeyDeleted].(bool); deleted {
		rev.SetDeletion(true)
		return rev, nil
	}
	body, err := props.ObjectFromGo(edit)
	if err != nil {
		return nil, err
	}
	rev.SetProperties(body)
	return rev, nil
}

// resolve registers a conflicts listener and waits for n outcomes.
func (h *Harness) resolve(ctx context.Context, fn conflict.ConflictsFunc, n int) ([]OutcomeEvent, error) {
	db := database.New(h.store, database.WithLogger(h.logger))
	defer db.Close()

	col := newCollector()
	handle, err := db.AddConflictsListener(ctx, fn, col.success, col.failure)
	if err != nil {
		return nil, fmt.Errorf("failed to register conflicts listener: %w", err)
	}

	waitErr := col.wait(ctx, n, h.wait)
	if err := db.RemoveConflictsListener(handle); err != nil {
		return nil, err
	}
	if waitErr != nil {
		return nil, waitErr
	}

	events := col.events()
	sort.SliceStable(events, func(i, j int) bool { return events[i].Doc < events[j].Doc })
	return events, nil
}

// capture reads the final leaves of a document.
func (h *Harness) capture(ctx context.Context, docID string) (DocumentState, error) {
	leaves, err := h.store.GetLeafRevisions(ctx, docID)
	if err != nil {
		return DocumentState{}, err
	}
	state := DocumentState{ID: docID, Leaves: make([]LeafState, 0, len(leaves))}
	for _, leaf := range leaves {
		state.Leaves = append(state.Leaves, LeafState{
			Generation: leaf.ID().Generation,
			Deleted:    leaf.IsDeletion(),
			Properties: leaf.UserProperties(),
		})
	}
	return state, nil
}

// collector records listener callbacks.
type collector struct {
	mu     sync.Mutex
	list   []OutcomeEvent
	signal chan struct{}
}

func newCollector() *collector {
	return &collector{signal: make(chan struct{}, 1)}
}

func (c *collector) success(docID string) {
	c.add(OutcomeEvent{Doc: docID, Outcome: OutcomeResolved})
}

func (c *collector) failure(docID string, err error) {
	e := OutcomeEvent{Doc: docID, Outcome: OutcomeFailed}
	var cerr *conflict.Error
	if errors.As(err, &cerr) {
		e.Code = string(cerr.Code)
	}
	c.add(e)
}

func (c *collector) add(e OutcomeEvent) {
	c.mu.Lock()
	c.list = append(c.list, e)
	c.mu.Unlock()
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

func (c *collector) events() []OutcomeEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]OutcomeEvent{}, c.list...)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.list)
}

func (c *collector) wait(ctx context.Context, n int, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for c.count() < n {
		select {
		case <-c.signal:
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("timed out after %s waiting for %d outcomes, got %d", timeout, n, c.count())
		}
	}
	return nil
}
