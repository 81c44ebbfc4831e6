package model

import "time"

// Dataset describes one stored dataset file.
type Dataset struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}
