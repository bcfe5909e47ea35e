package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"chat-server/models"
	"chat-server/utils"
)

type callFixture struct {
	db     *gorm.DB
	svc    *CallService
	pusher *recordingPusher
	clock  *fakeClock
	alice  models.User
	bob    models.User
	carol  models.User
}

func newCallFixture(t *testing.T) *callFixture {
	db := newTestDB(t)
	f := &callFixture{
		db:     db,
		pusher: &recordingPusher{},
		clock:  newFakeClock(),
		alice:  createUser(t, db, "alice"),
		bob:    createUser(t, db, "bob"),
		carol:  createUser(t, db, "carol"),
	}
	f.svc = NewCallService(db, f.pusher, nil, 5*time.Second)
	f.svc.now = f.clock.Now
	return f
}

func TestCallInitiateValidation(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()

	_, err := f.svc.Initiate(ctx, f.alice.ID, 0, models.CallAudio)
	requireKind(t, err, utils.KindValidation)

	_, err = f.svc.Initiate(ctx, f.alice.ID, f.bob.ID, "hologram")
	requireKind(t, err, utils.KindValidation)

	_, err = f.svc.Initiate(ctx, f.alice.ID, f.alice.ID, models.CallAudio)
	requireKind(t, err, utils.KindValidation)

	_, err = f.svc.Initiate(ctx, f.alice.ID, 9999, models.CallAudio)
	requireKind(t, err, utils.KindNotFound)

	assert.Zero(t, f.pusher.count())
}

func TestCallEndBeforeAccept(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()

	call, err := f.svc.Initiate(ctx, f.alice.ID, f.bob.ID, models.CallAudio)
	require.NoError(t, err)
	assert.Equal(t, models.CallPending, call.Status)
	assert.Nil(t, call.StartedAt)

	ring := f.pusher.to(f.bob.ID)
	require.Len(t, ring, 1)
	assert.Equal(t, EventIncomingCall, ring[0].Type)
	payload := ring[0].Payload.(CallEvent)
	require.NotNil(t, payload.Caller)
	assert.Equal(t, "alice", payload.Caller.Name)

	f.clock.Advance(10 * time.Second)
	ended, err := f.svc.End(ctx, call.ID, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallEnded, ended.Status)
	assert.Nil(t, ended.Duration)
	assert.NotNil(t, ended.EndedAt)
}

func TestCallAcceptThenEnd(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()

	call, err := f.svc.Initiate(ctx, f.alice.ID, f.bob.ID, models.CallVideo)
	require.NoError(t, err)

	accepted, err := f.svc.Accept(ctx, call.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallAccepted, accepted.Status)
	require.NotNil(t, accepted.StartedAt)

	toAlice := f.pusher.to(f.alice.ID)
	require.Len(t, toAlice, 1)
	assert.Equal(t, EventCallAccepted, toAlice[0].Type)

	f.clock.Advance(42 * time.Second)
	ended, err := f.svc.End(ctx, call.ID, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallEnded, ended.Status)
	require.NotNil(t, ended.Duration)
	assert.Equal(t, 42, *ended.Duration)

	toBob := f.pusher.to(f.bob.ID)
	require.Len(t, toBob, 2)
	assert.Equal(t, EventCallEnded, toBob[1].Type)

	stored, err := f.svc.Get(ctx, call.ID, f.bob.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Duration)
	assert.Equal(t, 42, *stored.Duration)
}

func TestCallParticipantChecks(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()

	call, err := f.svc.Initiate(ctx, f.alice.ID, f.bob.ID, models.CallAudio)
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, call.ID, f.alice.ID)
	requireKind(t, err, utils.KindForbidden)

	_, err = f.svc.Reject(ctx, call.ID, f.carol.ID)
	requireKind(t, err, utils.KindForbidden)

	_, err = f.svc.End(ctx, call.ID, f.carol.ID)
	requireKind(t, err, utils.KindForbidden)

	_, err = f.svc.Get(ctx, call.ID, f.carol.ID)
	requireKind(t, err, utils.KindNotFound)

	_, err = f.svc.Accept(ctx, 12345, f.bob.ID)
	requireKind(t, err, utils.KindNotFound)

	stored, err := f.svc.Get(ctx, call.ID, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallPending, stored.Status)
}

func TestCallRejectIsTerminal(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()

	call, err := f.svc.Initiate(ctx, f.alice.ID, f.bob.ID, models.CallAudio)
	require.NoError(t, err)

	rejected, err := f.svc.Reject(ctx, call.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallRejected, rejected.Status)
	assert.Nil(t, rejected.Duration)
	require.Len(t, f.pusher.to(f.alice.ID), 1)
	assert.Equal(t, EventCallRejected, f.pusher.to(f.alice.ID)[0].Type)

	pushes := f.pusher.count()

	again, err := f.svc.Reject(ctx, call.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallRejected, again.Status)

	ended, err := f.svc.End(ctx, call.ID, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallRejected, ended.Status)
	assert.Nil(t, ended.Duration)

	accepted, err := f.svc.Accept(ctx, call.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallRejected, accepted.Status)

	assert.Equal(t, pushes, f.pusher.count())
}

func TestCallRejectAfterAcceptIsNoop(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()

	call, err := f.svc.Initiate(ctx, f.alice.ID, f.bob.ID, models.CallAudio)
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, call.ID, f.bob.ID)
	require.NoError(t, err)

	got, err := f.svc.Reject(ctx, call.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallAccepted, got.Status)
	for _, ev := range f.pusher.to(f.alice.ID) {
		assert.NotEqual(t, EventCallRejected, ev.Type)
	}
}

func TestCallConcurrentEnd(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()

	call, err := f.svc.Initiate(ctx, f.alice.ID, f.bob.ID, models.CallVideo)
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, call.ID, f.bob.ID)
	require.NoError(t, err)
	f.clock.Advance(30 * time.Second)

	before := f.pusher.count()

	var wg sync.WaitGroup
	results := make([]*models.Call, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := f.alice.ID
			if i%2 == 1 {
				actor = f.bob.ID
			}
			c, err := f.svc.End(ctx, call.ID, actor)
			assert.NoError(t, err)
			results[i] = c
		}(i)
	}
	wg.Wait()

	assert.Equal(t, before+1, f.pusher.count(), "exactly one call_ended push")
	for _, c := range results {
		require.NotNil(t, c)
		assert.Equal(t, models.CallEnded, c.Status)
		require.NotNil(t, c.Duration)
		assert.Equal(t, 30, *c.Duration)
	}
}

func TestCallExpireRinging(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()

	stale, err := f.svc.Initiate(ctx, f.alice.ID, f.bob.ID, models.CallAudio)
	require.NoError(t, err)
	f.clock.Advance(60 * time.Second)
	fresh, err := f.svc.Initiate(ctx, f.carol.ID, f.bob.ID, models.CallAudio)
	require.NoError(t, err)

	n, err := f.svc.ExpireRinging(ctx, 45*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.svc.Get(ctx, stale.ID, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallMissed, got.Status)
	assert.True(t, got.Terminal())

	got, err = f.svc.Get(ctx, fresh.ID, f.carol.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallPending, got.Status)

	toAlice := f.pusher.to(f.alice.ID)
	require.Len(t, toAlice, 1)
	assert.Equal(t, EventCallEnded, toAlice[0].Type)

	n, err = f.svc.ExpireRinging(ctx, 45*time.Second)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCallHistoryOrder(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()

	// a: created t0, started t0+10s
	a, err := f.svc.Initiate(ctx, f.alice.ID, f.bob.ID, models.CallAudio)
	require.NoError(t, err)
	f.clock.Advance(10 * time.Second)
	_, err = f.svc.Accept(ctx, a.ID, f.bob.ID)
	require.NoError(t, err)

	// b: created t0+20s, never started
	f.clock.Advance(10 * time.Second)
	b, err := f.svc.Initiate(ctx, f.bob.ID, f.alice.ID, models.CallVideo)
	require.NoError(t, err)

	// c: created t0+30s, started t0+40s
	f.clock.Advance(10 * time.Second)
	c, err := f.svc.Initiate(ctx, f.alice.ID, f.bob.ID, models.CallAudio)
	require.NoError(t, err)
	f.clock.Advance(10 * time.Second)
	_, err = f.svc.Accept(ctx, c.ID, f.bob.ID)
	require.NoError(t, err)

	_, err = f.svc.Initiate(ctx, f.carol.ID, f.bob.ID, models.CallAudio)
	require.NoError(t, err)

	history, err := f.svc.History(ctx, f.alice.ID, 1, 20)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []uint{c.ID, b.ID, a.ID}, []uint{history[0].ID, history[1].ID, history[2].ID})

	page2, err := f.svc.History(ctx, f.alice.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, a.ID, page2[0].ID)

	none, err := f.svc.History(ctx, 9999, 1, 20)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCallConcurrentEndAndReject(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()

	for round := 0; round < 20; round++ {
		call, err := f.svc.Initiate(ctx, f.alice.ID, f.bob.ID, models.CallAudio)
		require.NoError(t, err)
		before := f.pusher.count()

		var wg sync.WaitGroup
		var ended, rejected *models.Call
		wg.Add(2)
		go func() {
			defer wg.Done()
			c, err := f.svc.End(ctx, call.ID, f.alice.ID)
			assert.NoError(t, err)
			ended = c
		}()
		go func() {
			defer wg.Done()
			c, err := f.svc.Reject(ctx, call.ID, f.bob.ID)
			assert.NoError(t, err)
			rejected = c
		}()
		wg.Wait()

		var stored models.Call
		require.NoError(t, f.db.First(&stored, call.ID).Error)
		assert.Contains(t, []string{models.CallEnded, models.CallRejected}, stored.Status)
		assert.True(t, stored.Terminal())
		assert.Nil(t, stored.Duration)
		require.NotNil(t, ended)
		require.NotNil(t, rejected)
		assert.Equal(t, stored.Status, ended.Status)
		assert.Equal(t, stored.Status, rejected.Status)
		assert.Equal(t, before+1, f.pusher.count(), "round %d: exactly one push", round)
	}
}
