// Package labels owns the label-array data model shared by the
// reconciliation layers.
//
// Responsibilities: dense 2-D label storage with views over a shared
// buffer, per-label bounding-box indexing, second-order moment statistics
// and connected-component relabelling.
// Key types: Array, BBox, Region, Index.
//
// Dependency rule: labels depends on nothing else in this module.
// Matching, growth and orchestration live in overlap, growth and reconcile.
package labels
