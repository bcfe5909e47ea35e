package models

import "time"

// Call statuses.
const (
	CallPending  = "pending"
	CallAccepted = "accepted"
	CallRejected = "rejected"
	CallEnded    = "ended"
	CallMissed   = "missed"
)

// Call kinds.
const (
	CallAudio = "audio"
	CallVideo = "video"
)

// Call is the signaling record of one call attempt.
type Call struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	CallerID   uint       `gorm:"index;not null" json:"callerId"`
	ReceiverID uint       `gorm:"index;not null" json:"receiverId"`
	CallType   string     `gorm:"size:8;not null" json:"callType"`
	Status     string     `gorm:"size:16;index;not null" json:"status"`
	StartedAt  *time.Time `json:"startedAt"`
	EndedAt    *time.Time `json:"endedAt"`
	Duration   *int       `json:"duration"` // whole seconds
	CreatedAt  time.Time  `gorm:"index" json:"createdAt"`
}

// Terminal reports whether no further transition is possible.
func (c *Call) Terminal() bool {
	switch c.Status {
	case CallRejected, CallEnded, CallMissed:
		return true
	}
	return false
}

// Other returns the participant that is not userID.
func (c *Call) Other(userID uint) uint {
	if c.CallerID == userID {
		return c.ReceiverID
	}
	return c.CallerID
}
