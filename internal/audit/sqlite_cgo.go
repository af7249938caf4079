//go:build cgo
// +build cgo

package audit

import (
	_ "github.com/mattn/go-sqlite3"
)

const sqliteDriver = "sqlite3"
