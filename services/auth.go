package services

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"chat-server/models"
	"chat-server/utils"
)

const tokenTTL = 7 * 24 * time.Hour

var (
	// ErrNoToken means no credential was supplied.
	ErrNoToken = errors.New("no token supplied")
	// ErrNoSubject means the token verified but carries no user id.
	ErrNoSubject = errors.New("token has no user id")
	// ErrInvalidToken means the token is malformed, expired or badly signed.
	ErrInvalidToken = errors.New("invalid token")
)

// Identity verifies bearer credentials.
type Identity interface {
	ParseToken(token string) (uint, error)
}

// AuthService issues and verifies bearer tokens and owns user credentials.
type AuthService struct {
	db      *gorm.DB
	secret  []byte
	timeout time.Duration
	now     func() time.Time
}

func NewAuthService(db *gorm.DB, secret string, timeout time.Duration) *AuthService {
	return &AuthService{db: db, secret: []byte(secret), timeout: timeout, now: time.Now}
}

// RegisterInput is the sign-up payload.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Number   string
}

// Register creates a user and returns it with a fresh token.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, string, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	switch {
	case in.Name == "":
		return nil, "", utils.Validation("name", "name is required")
	case in.Email == "":
		return nil, "", utils.Validation("email", "email is required")
	case in.Password == "":
		return nil, "", utils.Validation("password", "password is required")
	}

	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()
	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", in.Email).Count(&count).Error; err != nil {
		return nil, "", utils.Internal(err, "check email")
	}
	if count > 0 {
		return nil, "", utils.Conflict("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", utils.Internal(err, "hash password")
	}
	user := models.User{Name: in.Name, Email: in.Email, Password: string(hash), Number: digitsOf(in.Number)}
	if err := db.Create(&user).Error; err != nil {
		// a concurrent sign-up got past the count above
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, "", utils.Conflict("email already registered")
		}
		return nil, "", utils.Internal(err, "create user")
	}

	token, err := s.GenerateToken(user.ID)
	if err != nil {
		return nil, "", err
	}
	log.WithField("user_id", user.ID).Info("user registered")
	return &user, token, nil
}

// Login checks credentials and returns the user with a fresh token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, "", utils.Validation("email", "email and password are required")
	}

	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()

	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if isNotFound(err) {
			return nil, "", utils.Unauthorized("invalid email or password")
		}
		return nil, "", utils.Internal(err, "load user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, "", utils.Unauthorized("invalid email or password")
	}

	token, err := s.GenerateToken(user.ID)
	if err != nil {
		return nil, "", err
	}
	return &user, token, nil
}

// GenerateToken signs an HS256 token carrying userId.
func (s *AuthService) GenerateToken(userID uint) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"userId": userID,
		"iat":    now.Unix(),
		"exp":    now.Add(tokenTTL).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", utils.Internal(err, "sign token")
	}
	return signed, nil
}

// ParseToken returns the user id in token, or one of ErrNoToken,
// ErrNoSubject and ErrInvalidToken.
func (s *AuthService) ParseToken(token string) (uint, error) {
	if token == "" {
		return 0, ErrNoToken
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return 0, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidToken
	}
	id, ok := claims["userId"].(float64)
	if !ok || id <= 0 {
		return 0, ErrNoSubject
	}
	return uint(id), nil
}
