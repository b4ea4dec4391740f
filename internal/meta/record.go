// Package meta holds the per-store bookkeeping record and the channel that
// persists it and follows updates made by other processes.
package meta

import (
	"maps"
	"slices"
	"time"
)

// RecordID is the fixed id of the single meta document.
const RecordID = "meta"

// CollectionPrefix names the meta collection of store "x" as "meta_x".
const CollectionPrefix = "meta_"

// Record is the meta document of one logical store.
type Record struct {
	// Rev is the store revision the record was read or written at.
	Rev string `json:"-"`

	ClientID    string          `json:"clientId"`
	TsUpload    time.Time       `json:"tsUpload"`
	Unuploadeds map[string]bool `json:"unuploadeds"`
}

// NewRecord returns a fresh record for clientID with tsUpload at the epoch.
func NewRecord(clientID string) Record {
	return Record{
		ClientID:    clientID,
		TsUpload:    time.Unix(0, 0).UTC(),
		Unuploadeds: make(map[string]bool),
	}
}

// Clone returns a copy with its own unuploaded set.
func (r Record) Clone() Record {
	c := r
	c.Unuploadeds = maps.Clone(r.Unuploadeds)
	if c.Unuploadeds == nil {
		c.Unuploadeds = make(map[string]bool)
	}
	return c
}

// IDs returns the unuploaded ids in sorted order.
func (r Record) IDs() []string {
	return slices.Sorted(maps.Keys(r.Unuploadeds))
}
