// Package stores persists fitted models and a prediction audit trail in
// SQLite. Schema changes are applied with golang-migrate from embedded
// migration files.
package stores
