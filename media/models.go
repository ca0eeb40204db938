package media

import (
	"time"
)

type Status string

const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further pipeline transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) Valid() bool {
	switch s {
	case StatusUploading, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

type SensitivityStatus string

const (
	SensitivityPending SensitivityStatus = "pending"
	SensitivitySafe    SensitivityStatus = "safe"
	SensitivityFlagged SensitivityStatus = "flagged"
)

func (s SensitivityStatus) Valid() bool {
	return s == SensitivityPending || s == SensitivitySafe || s == SensitivityFlagged
}

// FlagThreshold is the score at or above which a video is flagged.
const FlagThreshold = 70.0

// Classify maps a sensitivity score onto its classification.
func Classify(score float64) SensitivityStatus {
	if score >= FlagThreshold {
		return SensitivityFlagged
	}
	return SensitivitySafe
}

// Video is the record the ingestion pipeline operates on.
//
// Status, Progress, Duration, SensitivityStatus and SensitivityScore are
// written only by the pipeline runner. The file fields are set once by the
// upload handler.
type Video struct {
	ID          string `gorm:"primaryKey" json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`

	Filename string `json:"filename"`
	Filepath string `json:"-"`
	Filesize int64  `json:"filesize"`
	MimeType string `json:"mimeType"`

	UploadedBy   uint   `gorm:"index" json:"uploadedBy"`
	Organization string `gorm:"index" json:"organization"`

	Duration          float64           `json:"duration"`
	Status            Status            `gorm:"index;default:uploading" json:"status"`
	Progress          int               `gorm:"default:0" json:"progress"`
	SensitivityStatus SensitivityStatus `gorm:"index;default:pending" json:"sensitivityStatus"`
	SensitivityScore  float64           `json:"sensitivityScore"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Scored reports whether the sensitivity scorer has run for this video.
func (v *Video) Scored() bool {
	return v.SensitivityStatus == SensitivitySafe || v.SensitivityStatus == SensitivityFlagged
}

// Patch is a partial update of the pipeline-owned fields. Nil fields are
// left untouched.
type Patch struct {
	Status            *Status
	Progress          *int
	Duration          *float64
	SensitivityStatus *SensitivityStatus
	SensitivityScore  *float64
}

func (p Patch) columns() map[string]any {
	cols := make(map[string]any)
	if p.Status != nil {
		cols["status"] = *p.Status
	}
	if p.Progress != nil {
		cols["progress"] = *p.Progress
	}
	if p.Duration != nil {
		cols["duration"] = *p.Duration
	}
	if p.SensitivityStatus != nil {
		cols["sensitivity_status"] = *p.SensitivityStatus
	}
	if p.SensitivityScore != nil {
		cols["sensitivity_score"] = *p.SensitivityScore
	}
	return cols
}

// Apply copies the non-nil patch fields onto v.
func (p Patch) Apply(v *Video) {
	if p.Status != nil {
		v.Status = *p.Status
	}
	if p.Progress != nil {
		v.Progress = *p.Progress
	}
	if p.Duration != nil {
		v.Duration = *p.Duration
	}
	if p.SensitivityStatus != nil {
		v.SensitivityStatus = *p.SensitivityStatus
	}
	if p.SensitivityScore != nil {
		v.SensitivityScore = *p.SensitivityScore
	}
}

// Filter narrows a listing of videos.
type Filter struct {
	Status            Status
	SensitivityStatus SensitivityStatus

	// Visibility scope; nil or zero means unrestricted.
	Organization *string
	UploadedBy   uint

	Offset int
	Limit  int
}
