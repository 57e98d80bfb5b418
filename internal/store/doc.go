// Package store defines interfaces for study and trial persistence.
// These interfaces abstract the underlying storage backend from the
// search coordinator, allowing the same scheduling logic to run against
// a SQLite file or a PostgreSQL server.
package store
