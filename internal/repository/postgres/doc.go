// Package postgres implements the service repositories against PostgreSQL
// using database/sql with the lib/pq driver. Schema lives in migrations/.
package postgres
