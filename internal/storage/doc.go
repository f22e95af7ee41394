// Package storage persists the operator audit trail.
//
// Per-group feature toggles are deliberately not stored here; they live in
// memory for the process lifetime. The store only records who changed what.
package storage
