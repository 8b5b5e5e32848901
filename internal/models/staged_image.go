package models

import "time"

// StagedImage is an uploaded file waiting in quarantine. It has no database row.
type StagedImage struct {
	Filename     string    `json:"filename"`
	Path         string    `json:"-"`
	OriginalName string    `json:"originalName"`
	MimeType     string    `json:"mimeType"`
	Size         int64     `json:"size"`
	UploadedAt   time.Time `json:"uploadedAt"`
}
