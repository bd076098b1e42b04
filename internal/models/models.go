package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Status is the moderation state of a Message or Comment.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Palette is the closed set of note colors.
var Palette = []string{"yellow", "pink", "blue", "green", "orange", "purple"}

// Moderation is the state shared by every moderated entity. The soft-delete
// marker is orthogonal to Status.
type Moderation struct {
	Status          Status     `gorm:"not null;default:pending;index" json:"status"`
	ModeratedBy     string     `json:"moderatedBy,omitempty"`
	ModeratedAt     *time.Time `json:"moderatedAt,omitempty"`
	RejectionReason string     `json:"rejectionReason,omitempty"`
	IsDeleted       bool       `gorm:"not null;default:false;index" json:"isDeleted"`
	DeletedBy       string     `json:"deletedBy,omitempty"`
	DeletedAt       *time.Time `json:"deletedAt,omitempty"`
}

// Submitter is abuse-review data. It never leaves the server.
type Submitter struct {
	SubmitterIP          string `gorm:"index" json:"-"`
	SubmitterFingerprint string `json:"-"`
}

// Message is a public sticky note.
type Message struct {
	ID         string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Content    string     `gorm:"not null;size:280" json:"content"`
	Color      string     `gorm:"not null;size:16" json:"color"`
	AuthorName string     `gorm:"size:50" json:"authorName,omitempty"`
	Moderation Moderation `gorm:"embedded" json:"moderation"`
	Submitter  Submitter  `gorm:"embedded" json:"-"`
	CreatedAt  time.Time  `gorm:"index;autoCreateTime:false" json:"createdAt"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime:false" json:"updatedAt"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// State exposes the moderation block to generic callers.
func (m *Message) State() *Moderation { return &m.Moderation }

func (m *Message) Touch(t time.Time) { m.UpdatedAt = t }

// Comment is a reply to a Message. The three client sets hold ClientIDs.
type Comment struct {
	ID             string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	MessageID      string     `gorm:"not null;index;type:varchar(36)" json:"messageId"`
	Content        string     `gorm:"not null;size:500" json:"content"`
	AuthorName     string     `gorm:"size:50" json:"authorName,omitempty"`
	Moderation     Moderation `gorm:"embedded" json:"moderation"`
	LikedBy        []string   `gorm:"serializer:json" json:"-"`
	DislikedBy     []string   `gorm:"serializer:json" json:"-"`
	ReportedBy     []string   `gorm:"serializer:json" json:"-"`
	ReportCount    int        `gorm:"not null;default:0" json:"reportCount"`
	AutoRejectedAt *time.Time `json:"autoRejectedAt,omitempty"`
	Submitter      Submitter  `gorm:"embedded" json:"-"`
	CreatedAt      time.Time  `gorm:"index;autoCreateTime:false" json:"createdAt"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime:false" json:"updatedAt"`
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

func (c *Comment) State() *Moderation { return &c.Moderation }

func (c *Comment) Touch(t time.Time) { c.UpdatedAt = t }

// ViolationType classifies a freestanding violation report.
type ViolationType string

const (
	ViolationSpam           ViolationType = "spam"
	ViolationHarassment     ViolationType = "harassment"
	ViolationHateSpeech     ViolationType = "hate_speech"
	ViolationViolence       ViolationType = "violence"
	ViolationSexualContent  ViolationType = "sexual_content"
	ViolationMisinformation ViolationType = "misinformation"
	ViolationOther          ViolationType = "other"
)

func (t ViolationType) Valid() bool {
	switch t {
	case ViolationSpam, ViolationHarassment, ViolationHateSpeech, ViolationViolence,
		ViolationSexualContent, ViolationMisinformation, ViolationOther:
		return true
	}
	return false
}

// ReportStatus is the review state of a ViolationReport.
type ReportStatus string

const (
	ReportPending   ReportStatus = "pending"
	ReportReviewed  ReportStatus = "reviewed"
	ReportDismissed ReportStatus = "dismissed"
)

// ViolationReport is a visitor complaint outside the comment interaction model.
type ViolationReport struct {
	ID                  string        `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Type                ViolationType `gorm:"not null;size:32" json:"type"`
	Description         string        `gorm:"not null;size:1000" json:"description"`
	MessageID           string        `gorm:"index;type:varchar(36)" json:"messageId,omitempty"`
	ReporterFingerprint string        `json:"-"`
	Status              ReportStatus  `gorm:"not null;default:pending;index" json:"status"`
	ReviewedBy          string        `json:"reviewedBy,omitempty"`
	ReviewedAt          *time.Time    `json:"reviewedAt,omitempty"`
	CreatedAt           time.Time     `gorm:"index;autoCreateTime:false" json:"createdAt"`
	UpdatedAt           time.Time     `gorm:"autoUpdateTime:false" json:"updatedAt"`
}

func (r *ViolationReport) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

func (r *ViolationReport) Touch(t time.Time) { r.UpdatedAt = t }
