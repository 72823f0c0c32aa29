// Package policy compiles declarative conflict resolution policies.
//
// A policy is a CUE file with a top-level policy struct:
//
//	policy: {
//		name: "inventory"
//		default: strategy: "winner"
//		rules: [
//			{prefix: "stock:", strategy: "field_max", field: "count"},
//			{prefix: "note:", strategy: "merge"},
//			{prefix: "contract:", strategy: "manual", reason: "legal review"},
//		]
//	}
//
// The file is unified with an embedded schema, so unknown fields and
// unknown strategies are rejected with their source position. Rules match
// by document id prefix; the first match wins, otherwise default applies.
// A compiled Policy yields a conflict.ConflictsFunc.
package policy
