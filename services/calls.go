package services

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"chat-server/models"
	"chat-server/utils"
)

// maxTransitionAttempts bounds re-reads after a lost compare-and-set. Every
// successful concurrent write moves the call strictly forward, so a handful
// of attempts always settles.
const maxTransitionAttempts = 5

// CallEvent is the payload of every call_* push event.
type CallEvent struct {
	CallID uint                `json:"callId"`
	Call   *models.Call        `json:"call"`
	Caller *models.UserSummary `json:"caller,omitempty"`
}

// CallService drives the call-session state machine.
type CallService struct {
	db      *gorm.DB
	pusher  Pusher
	metrics *Metrics
	timeout time.Duration
	now     func() time.Time
}

func NewCallService(db *gorm.DB, pusher Pusher, metrics *Metrics, timeout time.Duration) *CallService {
	return &CallService{db: db, pusher: pusher, metrics: metrics, timeout: timeout, now: time.Now}
}

// Initiate creates a pending call and rings the receiver if they are online.
func (s *CallService) Initiate(ctx context.Context, callerID, receiverID uint, callType string) (*models.Call, error) {
	if receiverID == 0 {
		return nil, utils.Validation("receiverId", "receiverId is required")
	}
	if callType != models.CallAudio && callType != models.CallVideo {
		return nil, utils.Validation("callType", "callType must be audio or video")
	}
	if receiverID == callerID {
		return nil, utils.Validation("receiverId", "cannot call yourself")
	}

	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()
	db := s.db.WithContext(ctx)

	var users []models.User
	if err := db.Where("id IN ?", []uint{callerID, receiverID}).Find(&users).Error; err != nil {
		return nil, utils.Internal(err, "load call participants")
	}
	var caller *models.User
	found := false
	for i := range users {
		switch users[i].ID {
		case callerID:
			caller = &users[i]
		case receiverID:
			found = true
		}
	}
	if !found {
		return nil, utils.NotFound("receiver not found")
	}

	call := models.Call{
		CallerID:   callerID,
		ReceiverID: receiverID,
		CallType:   callType,
		Status:     models.CallPending,
		CreatedAt:  s.now(),
	}
	if err := db.Create(&call).Error; err != nil {
		return nil, utils.Internal(err, "create call")
	}
	s.metrics.callTransition(models.CallPending)

	ev := CallEvent{CallID: call.ID, Call: &call}
	if caller != nil {
		summary := caller.Summary()
		ev.Caller = &summary
	}
	s.pusher.Send(receiverID, Event{Type: EventIncomingCall, Payload: ev})

	log.WithFields(log.Fields{
		"call_id": call.ID, "caller_id": callerID, "receiver_id": receiverID, "type": callType,
	}).Info("call initiated")
	return &call, nil
}

// Accept moves a pending call to accepted. Only the receiver may accept.
func (s *CallService) Accept(ctx context.Context, callID, actor uint) (*models.Call, error) {
	call, changed, err := s.transition(ctx, callID, models.CallAccepted, func(c *models.Call) error {
		if c.ReceiverID != actor {
			return utils.Forbidden("only the receiver can accept this call")
		}
		return nil
	}, models.CallPending)
	if err != nil {
		return nil, err
	}
	if changed {
		s.pusher.Send(call.CallerID, Event{Type: EventCallAccepted, Payload: CallEvent{CallID: call.ID, Call: call}})
	}
	return call, nil
}

// Reject moves a pending call to rejected. Only the receiver may reject.
func (s *CallService) Reject(ctx context.Context, callID, actor uint) (*models.Call, error) {
	call, changed, err := s.transition(ctx, callID, models.CallRejected, func(c *models.Call) error {
		if c.ReceiverID != actor {
			return utils.Forbidden("only the receiver can reject this call")
		}
		return nil
	}, models.CallPending)
	if err != nil {
		return nil, err
	}
	if changed {
		s.pusher.Send(call.CallerID, Event{Type: EventCallRejected, Payload: CallEvent{CallID: call.ID, Call: call}})
	}
	return call, nil
}

// End hangs up a pending or accepted call. Either participant may end it.
func (s *CallService) End(ctx context.Context, callID, actor uint) (*models.Call, error) {
	call, changed, err := s.transition(ctx, callID, models.CallEnded, func(c *models.Call) error {
		if c.CallerID != actor && c.ReceiverID != actor {
			return utils.Forbidden("you are not a participant of this call")
		}
		return nil
	}, models.CallPending, models.CallAccepted)
	if err != nil {
		return nil, err
	}
	if changed {
		s.pusher.Send(call.Other(actor), Event{Type: EventCallEnded, Payload: CallEvent{CallID: call.ID, Call: call}})
	}
	return call, nil
}

// Get returns a call the actor participates in.
func (s *CallService) Get(ctx context.Context, callID, actor uint) (*models.Call, error) {
	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()

	var call models.Call
	if err := s.db.WithContext(ctx).First(&call, callID).Error; err != nil {
		return nil, notFoundOr(err, "call")
	}
	if call.CallerID != actor && call.ReceiverID != actor {
		return nil, utils.NotFound("call not found")
	}
	return &call, nil
}

// History lists the calls userID took part in, most recent start first.
// Calls that never started are ordered by their creation time.
func (s *CallService) History(ctx context.Context, userID uint, page, limit int) ([]models.Call, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()

	calls := make([]models.Call, 0, limit)
	err := s.db.WithContext(ctx).
		Where("caller_id = ? OR receiver_id = ?", userID, userID).
		Order("COALESCE(started_at, created_at) DESC").
		Order("id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&calls).Error
	if err != nil {
		return nil, utils.Internal(err, "load call history")
	}
	return calls, nil
}

// ExpireRinging marks calls that have been pending longer than ringTimeout
// as missed and notifies both participants. It returns how many were marked.
func (s *CallService) ExpireRinging(ctx context.Context, ringTimeout time.Duration) (int, error) {
	cutoff := s.now().Add(-ringTimeout)

	qctx, cancel := newContext(ctx, s.timeout)
	var stale []models.Call
	err := s.db.WithContext(qctx).
		Where("status = ? AND created_at < ?", models.CallPending, cutoff).
		Find(&stale).Error
	cancel()
	if err != nil {
		return 0, utils.Internal(err, "load ringing calls")
	}

	missed := 0
	for _, c := range stale {
		call, changed, err := s.transition(ctx, c.ID, models.CallMissed, nil, models.CallPending)
		if err != nil {
			return missed, err
		}
		if !changed {
			continue
		}
		missed++
		ev := Event{Type: EventCallEnded, Payload: CallEvent{CallID: call.ID, Call: call}}
		s.pusher.Send(call.CallerID, ev)
		s.pusher.Send(call.ReceiverID, ev)
	}
	return missed, nil
}

// RunExpiry calls ExpireRinging periodically until ctx is done.
func (s *CallService) RunExpiry(ctx context.Context, ringTimeout time.Duration) error {
	interval := ringTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.ExpireRinging(ctx, ringTimeout)
			if err != nil {
				log.WithError(err).Warn("expire ringing calls")
				continue
			}
			if n > 0 {
				log.WithField("count", n).Info("ringing calls marked missed")
			}
		}
	}
}

// transition moves call callID to status `to` if its current status is one of
// `from`, using a conditional update on the observed status. A call in any
// other status is returned unchanged with changed == false. authorize runs
// against the loaded record before any write.
func (s *CallService) transition(ctx context.Context, callID uint, to string,
	authorize func(*models.Call) error, from ...string) (*models.Call, bool, error) {

	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()
	db := s.db.WithContext(ctx)

	var call models.Call
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		call = models.Call{}
		if err := db.First(&call, callID).Error; err != nil {
			return nil, false, notFoundOr(err, "call")
		}
		if authorize != nil {
			if err := authorize(&call); err != nil {
				return nil, false, err
			}
		}
		if call.Terminal() || !statusIn(call.Status, from) {
			return &call, false, nil
		}

		updates := transitionUpdates(&call, to, s.now())
		res := db.Model(&models.Call{}).
			Where("id = ? AND status = ?", call.ID, call.Status).
			Updates(updates)
		if res.Error != nil {
			return nil, false, utils.Internal(res.Error, "update call")
		}
		if res.RowsAffected == 1 {
			applyUpdates(&call, updates)
			s.metrics.callTransition(to)
			log.WithFields(log.Fields{"call_id": call.ID, "status": to}).Info("call transition")
			return &call, true, nil
		}
		// lost the race: another writer moved the call first
	}

	call = models.Call{}
	if err := db.First(&call, callID).Error; err != nil {
		return nil, false, notFoundOr(err, "call")
	}
	return &call, false, nil
}

func statusIn(status string, set []string) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

// transitionUpdates computes the column changes for moving c to status to.
func transitionUpdates(c *models.Call, to string, now time.Time) map[string]interface{} {
	updates := map[string]interface{}{"status": to}
	switch to {
	case models.CallAccepted:
		updates["started_at"] = now
	case models.CallEnded:
		updates["ended_at"] = now
		if c.StartedAt != nil && c.Status == models.CallAccepted {
			d := int(now.Sub(*c.StartedAt) / time.Second)
			if d < 0 {
				d = 0
			}
			updates["duration"] = d
		} else {
			updates["duration"] = nil
		}
	case models.CallRejected, models.CallMissed:
		updates["ended_at"] = now
		updates["duration"] = nil
	}
	return updates
}

func applyUpdates(c *models.Call, updates map[string]interface{}) {
	c.Status = updates["status"].(string)
	if v, ok := updates["started_at"].(time.Time); ok {
		c.StartedAt = &v
	}
	if v, ok := updates["ended_at"].(time.Time); ok {
		c.EndedAt = &v
	}
	if v, ok := updates["duration"]; ok {
		if d, isInt := v.(int); isInt {
			c.Duration = &d
		} else {
			c.Duration = nil
		}
	}
}
