// Package store provides SQLite-backed storage for the instance registry,
// the navigation audit log and external choice lists.
//
// # Tables
//
//   - instances: one row per saved instance, keyed by instance ID
//   - audit_events: append-only navigation log, UNIQUE(instance_id, seq)
//   - external_choices: choice lists served to dynamic select questions
//
// # Ordering
//
// Audit events and instances are ordered by their logical seq, never by
// wall-clock time. Every query that returns several rows ends with
// ORDER BY seq ASC, id ASC so listings are stable.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
