// Package migrations embeds the SQL schema upgrade files applied by
// internal/store on startup, the way the teacher's pkg/memory/migrations
// package embeds its own *.sql files with go:embed.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
