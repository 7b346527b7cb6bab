// Package sqldocs exposes the relational store DDL directly from the docs tree.
package sqldocs

import _ "embed"

// SQLite contains the SQLite DDL for the mitonet store.
//
//go:embed sqlite.sql
var SQLite string

// Postgres contains the Postgres DDL for the mitonet store.
//
//go:embed postgres.sql
var Postgres string
