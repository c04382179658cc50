// Package models contains GORM persistence models for the general ledger
// tables. Domain entities stay free of ORM tags; each model converts to and
// from its domain type.
//
// Tables:
// - gl_transactions / gl_transaction_lines: posted journal headers and lines
// - gl_batch_groups / gl_batched_transactions: batch accumulators and members
// - gl_posting_audit: one row per ingest outcome
package models
