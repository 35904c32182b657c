// Package database provides PostgreSQL connection pool construction for the
// fill journal.
package database
