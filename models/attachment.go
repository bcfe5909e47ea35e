package models

// Attachment kinds.
const (
	AttachmentImage    = "image"
	AttachmentVideo    = "video"
	AttachmentDocument = "document"
	AttachmentVoice    = "voice"
)

// ValidAttachmentType reports whether t is a recognized attachment kind.
func ValidAttachmentType(t string) bool {
	switch t {
	case AttachmentImage, AttachmentVideo, AttachmentDocument, AttachmentVoice:
		return true
	}
	return false
}

// Attachment belongs to exactly one message. Pathname is the storage
// locator; URL is resolved from it on read and never persisted.
type Attachment struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	MessageID uint    `gorm:"index;not null" json:"messageId"`
	Type      string  `gorm:"size:16;not null" json:"type"`
	Pathname  string  `gorm:"size:255;not null" json:"pathname"`
	Filename  *string `gorm:"size:255" json:"filename"`
	Size      *int64  `json:"size"`
	Duration  *int    `json:"duration"` // seconds, voice only
	URL       string  `gorm:"-" json:"url"`
}
