// Package harness runs conflict resolution scenarios end to end.
//
// A scenario is a YAML file describing documents to seed (a base revision
// and one or more branches, each a list of edits), an optional CUE
// resolution policy, and expectations about the outcome:
//
//	name: stock_counts
//	description: the larger stock count survives
//	policy: ../policies/inventory.cue
//	documents:
//	  - id: "stock:widget"
//	    base: {count: 1}
//	    branches:
//	      - [{count: 5}]
//	      - [{count: 2}, {count: 9}]
//	expect:
//	  - doc: "stock:widget"
//	    outcome: resolved
//	    leaves: 1
//	    properties: {count: 9}
//
// Run seeds a fresh in-memory store, registers a conflicts listener through
// a database handle, waits for one outcome per conflicted document and
// returns a trace of the outcomes and the final leaves. Revision digests
// are left out of the trace so golden files stay readable; generations are
// kept.
//
// RunWithGolden compares the canonical JSON trace against
// testdata/golden/<name>.golden. To regenerate golden files, run:
//
//	go test ./internal/harness -update
package harness
