package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-server/utils"
)

func TestRegisterAndLogin(t *testing.T) {
	db := newTestDB(t)
	auth := NewAuthService(db, "secret", 5*time.Second)
	ctx := context.Background()

	user, token, err := auth.Register(ctx, RegisterInput{
		Name: "Ann", Email: " Ann@Example.com ", Password: "hunter22", Number: "+1 (555) 010-2030",
	})
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", user.Email)
	assert.Equal(t, "15550102030", user.Number)
	assert.NotEqual(t, "hunter22", user.Password)

	id, err := auth.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)

	_, _, err = auth.Register(ctx, RegisterInput{Name: "Ann2", Email: "ann@example.com", Password: "x"})
	requireKind(t, err, utils.KindConflict)

	_, _, err = auth.Register(ctx, RegisterInput{Email: "b@example.com", Password: "x"})
	requireKind(t, err, utils.KindValidation)

	logged, token, err := auth.Login(ctx, "ANN@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, user.ID, logged.ID)
	assert.NotEmpty(t, token)

	_, _, err = auth.Login(ctx, "ann@example.com", "wrong")
	requireKind(t, err, utils.KindUnauthorized)
	_, _, err = auth.Login(ctx, "nobody@example.com", "hunter22")
	requireKind(t, err, utils.KindUnauthorized)
}

func TestParseToken(t *testing.T) {
	auth := NewAuthService(nil, "secret", time.Second)

	_, err := auth.ParseToken("")
	assert.Equal(t, ErrNoToken, err)

	_, err = auth.ParseToken("not-a-jwt")
	assert.Equal(t, ErrInvalidToken, err)

	other := NewAuthService(nil, "other-secret", time.Second)
	foreign, err := other.GenerateToken(3)
	require.NoError(t, err)
	_, err = auth.ParseToken(foreign)
	assert.Equal(t, ErrInvalidToken, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = auth.ParseToken(noSubject)
	assert.Equal(t, ErrNoSubject, err)

	auth.now = func() time.Time { return time.Now().Add(-8 * 24 * time.Hour) }
	expired, err := auth.GenerateToken(3)
	require.NoError(t, err)
	_, err = auth.ParseToken(expired)
	assert.Equal(t, ErrInvalidToken, err)
}

func TestRegisterConcurrentDuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	auth := NewAuthService(db, "secret", 5*time.Second)
	ctx := context.Background()

	for round := 0; round < 5; round++ {
		email := fmt.Sprintf("race-%d@example.com", round)
		var wg sync.WaitGroup
		errs := make([]error, 4)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, _, errs[i] = auth.Register(ctx, RegisterInput{Name: "racer", Email: email, Password: "pw"})
			}(i)
		}
		wg.Wait()

		created := 0
		for _, err := range errs {
			if err == nil {
				created++
				continue
			}
			assert.Equal(t, utils.KindConflict, utils.KindOf(err), "round %d: %v", round, err)
		}
		assert.Equal(t, 1, created, "round %d", round)
	}
}
