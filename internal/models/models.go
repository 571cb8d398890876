package models

import (
	"time"
)

// Label is a named prediction returned by the vision service, used for both
// tags and detected objects.
type Label struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Recognition is the metadata record stored next to every analyzed image.
type Recognition struct {
	ID                string   `json:"id"`
	BlobName          string   `json:"blobName"`
	Container         string   `json:"container"`
	ContentType       string   `json:"contentType"`
	FileName          string   `json:"fileName"`
	Caption           *string  `json:"caption"`
	CaptionConfidence *float64 `json:"captionConfidence"`
	Tags              []Label  `json:"tags"`
	Objects           []Label  `json:"objects"`
	AnalyzedAt        string   `json:"analyzedAt"`
}

// RecentItem is one row of the recent analyses listing.
type RecentItem struct {
	ID                string   `json:"id"`
	AnalyzedAt        string   `json:"analyzedAt"`
	BlobName          string   `json:"blobName"`
	FileName          string   `json:"fileName"`
	Objects           []Label  `json:"objects"`
	Caption           *string  `json:"caption"`
	CaptionConfidence *float64 `json:"captionConfidence"`
	SASURL            string   `json:"sasUrl"`
}

type AccessLog struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp time.Time `gorm:"index;not null"`
	Method    string    `gorm:"type:varchar(10);not null"`
	Path      string    `gorm:"type:text;not null"`
	Status    int       `gorm:"not null;index"`
	Duration  time.Duration
	ClientIP  string `gorm:"type:varchar(45);not null"`
	UserAgent string `gorm:"type:text"`
	BytesSent int    `gorm:"not null;default:0"`
}

func (AccessLog) TableName() string {
	return "access_logs"
}
