package storage

import "time"

// Change captures a single library change between two snapshots.
type Change struct {
	OccurredAt time.Time
	RunID      string

	MangaID    string
	Title      string
	Status     string
	ChangeType string // added | updated | removed
}

// Run is one recorded snapshot.
type Run struct {
	ID         string
	At         time.Time
	MangaCount int
	Added      int
	Updated    int
	Removed    int
}

// StatusStats counts the stored titles per reading status.
type StatusStats struct {
	Status string
	Count  int
	Rated  int
}
