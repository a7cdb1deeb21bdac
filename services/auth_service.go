package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/priya-sharma/stitchbook-api/models"
	"github.com/priya-sharma/stitchbook-api/pkg/apperrors"
	"github.com/priya-sharma/stitchbook-api/pkg/logger"
)

// Claims contains the data carried in an access token.
type Claims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService issues and validates tokens against the local users table.
// Sign-in works entirely offline; nothing here touches the remote backend.
type AuthService struct {
	db     *gorm.DB
	secret []byte
	ttl    time.Duration
	log    logger.Logger
}

// NewAuthService creates the auth service and ensures the users table exists.
func NewAuthService(db *gorm.DB, secret string, ttl time.Duration, log logger.Logger) (*AuthService, error) {
	if err := db.AutoMigrate(&models.User{}); err != nil {
		return nil, fmt.Errorf("failed to migrate users table: %w", err)
	}
	return &AuthService{
		db:     db,
		secret: []byte(secret),
		ttl:    ttl,
		log:    log,
	}, nil
}

// SignUp creates a new account with a bcrypt-hashed password.
func (s *AuthService) SignUp(name, email, password, role string) (models.User, error) {
	if name == "" || email == "" {
		return models.User{}, apperrors.NewValidationError("email", "name and email are required")
	}
	if len(password) < 8 {
		return models.User{}, apperrors.NewValidationError("password", "password must be at least 8 characters")
	}
	if !models.ValidRole(role) {
		return models.User{}, apperrors.NewValidationError("role", "role must be ADMIN or STAFF")
	}

	var existing models.User
	err := s.db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return models.User{}, apperrors.NewValidationError("email", "an account with this email already exists")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, fmt.Errorf("failed to check existing account: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.db.Create(&user).Error; err != nil {
		return models.User{}, fmt.Errorf("failed to create account: %w", err)
	}

	s.log.Info("Account created", "email", email, "role", role)
	return user, nil
}

// SignIn verifies the credentials and returns a signed token plus the user.
func (s *AuthService) SignIn(email, password string) (string, models.User, error) {
	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", models.User{}, apperrors.NewValidationError("email", "invalid email or password")
		}
		return "", models.User{}, fmt.Errorf("failed to look up account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", models.User{}, apperrors.NewValidationError("email", "invalid email or password")
	}

	token, err := s.GenerateToken(user)
	if err != nil {
		return "", models.User{}, err
	}
	return token, user, nil
}

// GenerateToken signs an HS256 access token for user.
func (s *AuthService) GenerateToken(user models.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a token string and returns its claims.
func (s *AuthService) ParseToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// UserByID looks up an account by its identifier.
func (s *AuthService) UserByID(id uint) (models.User, bool) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		return models.User{}, false
	}
	return user, true
}

// CurrentUser resolves a token to its account, or found=false when the
// token is invalid or the account no longer exists.
func (s *AuthService) CurrentUser(tokenStr string) (models.User, bool) {
	claims, err := s.ParseToken(tokenStr)
	if err != nil {
		return models.User{}, false
	}

	var user models.User
	if err := s.db.First(&user, claims.UserID).Error; err != nil {
		return models.User{}, false
	}
	return user, true
}
