// Package models contains GORM persistence models that map to database tables.
// Domain types stay free of GORM tags; each model converts to and from its
// domain type and repositories work only with models.
//
// The Postgres schema itself is owned by the SQL migrations. GORM tags here
// carry column types for the AutoMigrate used in repository tests.
package models
