package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"chat-server/models"
	"chat-server/utils"
)

// newTestDB opens a private in-memory sqlite database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Exec("PRAGMA foreign_keys = ON").Error)
	require.NoError(t, models.Migrate(db))
	return db
}

func createUser(t *testing.T, db *gorm.DB, name string) models.User {
	t.Helper()
	u := models.User{
		Name:     name,
		Email:    fmt.Sprintf("%s-%s@example.com", name, uuid.NewString()[:8]),
		Password: "not-a-hash",
	}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func requireKind(t *testing.T, err error, kind utils.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, utils.KindOf(err), "error: %v", err)
}

type pushed struct {
	UserID uint
	Event  Event
}

// recordingPusher captures pushes instead of delivering them.
type recordingPusher struct {
	mu     sync.Mutex
	events []pushed
}

func (p *recordingPusher) Send(userID uint, ev Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, pushed{UserID: userID, Event: ev})
	return true
}

func (p *recordingPusher) to(userID uint) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Event
	for _, e := range p.events {
		if e.UserID == userID {
			out = append(out, e.Event)
		}
	}
	return out
}

func (p *recordingPusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// fakeChannel records writes and the close code.
type fakeChannel struct {
	mu        sync.Mutex
	written   []Event
	closeCode int
	closed    chan struct{}
	once      sync.Once
	block     chan struct{}
	failWrite bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{closed: make(chan struct{})}
}

func (f *fakeChannel) WriteJSON(v interface{}) error {
	if f.block != nil {
		<-f.block
	}
	if f.failWrite {
		return errors.New("broken pipe")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, v.(Event))
	return nil
}

func (f *fakeChannel) Close(code int, reason string) error {
	f.once.Do(func() {
		f.mu.Lock()
		f.closeCode = code
		f.mu.Unlock()
		close(f.closed)
	})
	return nil
}

func (f *fakeChannel) events() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.written...)
}

func (f *fakeChannel) code() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCode
}

func (f *fakeChannel) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// fakeClock hands out UTC times with whole seconds.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
