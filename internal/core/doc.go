// Package core provides the business logic for guest-list imports and exports.
//
// This package contains all domain logic independent of any UI or transport
// layer. It is used by the web handlers and by the guestctl CLI.
//
// # Architecture
//
//   - Service: the entry point for every operation on an event's guest list.
//   - Snapshot: an immutable, versioned copy of the guest list as last read
//     from the registry. Every mutation is followed by a full re-read.
//   - TaskLock: one slot per event, shared by imports and manual edits.
//   - HistoryStore: finished imports, in memory or in Postgres.
//
// # Import
//
//  1. The caller passes the uploaded file to [Service.Import]
//  2. The text is tokenized and mapped to guest candidates
//  3. Candidates are created one at a time; the first rejection stops the batch
//  4. The guest list is refreshed and the outcome recorded in the history
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - IMP001-IMP003: Import errors (no rows, busy, rejected row)
//   - GST001-GST002: Guest errors (missing name, not found)
//   - REG001-REG003: Registry errors (rejection, unreachable, timeout)
//   - FILE001, FILE004: File errors (size, missing)
package core
