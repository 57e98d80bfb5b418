// Package sqldb implements study persistence over SQL databases.
// The backend is selected by the storage URI scheme: sqlite URIs open a
// local database file through the cgo-free modernc driver, postgres URIs
// open a connection through the pgx stdlib driver. The same store code
// serves both; placeholder style is rebound per dialect.
package sqldb
