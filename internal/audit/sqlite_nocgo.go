//go:build !cgo
// +build !cgo

package audit

import (
	_ "modernc.org/sqlite"
)

const sqliteDriver = "sqlite"
