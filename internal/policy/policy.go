package policy

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaSource string

// Strategy names a resolution strategy.
type Strategy string

const (
	// StrategyWinner keeps the winning leaf and tombstones the rest.
	StrategyWinner Strategy = "winner"
	// StrategyFieldMax keeps the leaf with the greatest numeric value at
	// Field. Ties and non-numeric values fall back to winner order.
	StrategyFieldMax Strategy = "field_max"
	// StrategyMerge writes a child of the winner holding the union of all
	// leaves' properties, the winner's values first, and tombstones the
	// other leaves.
	StrategyMerge Strategy = "merge"
	// StrategyManual never resolves; the conflict is reported as an error.
	StrategyManual Strategy = "manual"
)

// Action is what a policy does with one conflicted document.
type Action struct {
	Strategy Strategy `json:"strategy"`
	Field    string   `json:"field,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

// Rule applies an action to documents whose id starts with Prefix.
type Rule struct {
	Prefix   string   `json:"prefix"`
	Strategy Strategy `json:"strategy"`
	Field    string   `json:"field,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

func (r Rule) action() Action {
	return Action{Strategy: r.Strategy, Field: r.Field, Reason: r.Reason}
}

// Spec is the decoded form of a policy file.
type Spec struct {
	Name    string `json:"name"`
	Default Action `json:"default"`
	Rules   []Rule `json:"rules"`
}

// Error is a policy load or validation error.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Policy is a compiled, validated policy.
type Policy struct {
	spec Spec
}

// Default returns the built-in policy: every conflict keeps its winner.
func Default() *Policy {
	return &Policy{spec: Spec{
		Name:    "default",
		Default: Action{Strategy: StrategyWinner},
	}}
}

// LoadFile reads and compiles the policy file at path.
func LoadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return Parse(path, data)
}

// Parse compiles CUE source. filename is used in error positions.
func Parse(filename string, src []byte) (*Policy, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("policy schema: %w", err)
	}

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	pv := v.LookupPath(cue.ParsePath("policy"))
	if !pv.Exists() {
		return nil, &Error{
			Field:   "policy",
			Message: "policy is required",
			Pos:     v.Pos(),
		}
	}

	unified := schema.LookupPath(cue.ParsePath("#Policy")).Unify(pv)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var spec Spec
	if err := unified.Decode(&spec); err != nil {
		return nil, formatCUEError(err)
	}
	return New(spec)
}

// New validates spec and compiles it.
func New(spec Spec) (*Policy, error) {
	if spec.Name == "" {
		spec.Name = "default"
	}
	if spec.Default.Strategy == "" {
		spec.Default.Strategy = StrategyWinner
	}
	if err := validateAction("default", spec.Default); err != nil {
		return nil, err
	}
	for i, r := range spec.Rules {
		field := fmt.Sprintf("rules[%d]", i)
		if r.Prefix == "" {
			return nil, &Error{Field: field + ".prefix", Message: "prefix is required"}
		}
		if err := validateAction(field, r.action()); err != nil {
			return nil, err
		}
	}
	return &Policy{spec: spec}, nil
}

func validateAction(field string, a Action) error {
	switch a.Strategy {
	case StrategyWinner, StrategyMerge, StrategyManual:
	case StrategyFieldMax:
		if a.Field == "" {
			return &Error{Field: field + ".field", Message: "field_max needs a field"}
		}
	default:
		return &Error{Field: field + ".strategy", Message: fmt.Sprintf("unknown strategy %q", a.Strategy)}
	}
	return nil
}

// Name returns the policy's name.
func (p *Policy) Name() string { return p.spec.Name }

// Spec returns a copy of the decoded policy.
func (p *Policy) Spec() Spec {
	spec := p.spec
	spec.Rules = append([]Rule(nil), p.spec.Rules...)
	return spec
}

// ActionFor returns the action applied to docID.
func (p *Policy) ActionFor(docID string) Action {
	for _, r := range p.spec.Rules {
		if strings.HasPrefix(docID, r.Prefix) {
			return r.action()
		}
	}
	return p.spec.Default
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &Error{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return &Error{Field: "cue", Message: first.Error()}
}
