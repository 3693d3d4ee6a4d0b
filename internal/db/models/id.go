package models

import "github.com/funnelforge/funnelforge/internal/uniuri"

// recordIDLen is the length of every primary key in the schema.
const recordIDLen = 24

// NewRecordID generates a random identifier for a new database record.
func NewRecordID() string {
	return uniuri.NewLen(recordIDLen)
}
