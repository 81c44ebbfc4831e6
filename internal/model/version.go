package model

import "time"

// Version is one execution snapshot of a notebook tab. OutputPreview holds
// at most the first 500 runes of the run's output.
type Version struct {
	ID            string    `json:"id"`
	Tab           string    `json:"tab"`
	Code          string    `json:"code"`
	OutputPreview string    `json:"outputPreview"`
	Success       bool      `json:"success"`
	CreatedAt     time.Time `json:"createdAt"`
}
