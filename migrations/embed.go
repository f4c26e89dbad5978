// Package migrations embeds the engagement schema, its stored routines and seed data.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
