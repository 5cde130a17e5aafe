// Package auth handles email/password accounts and session tokens.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/conorfennell/studyloop/internal/domain"
	"github.com/conorfennell/studyloop/internal/logger"
	"github.com/conorfennell/studyloop/internal/storage"
)

var (
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailNotVerified   = errors.New("email address has not been verified")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// UserStore is the persistence auth needs.
type UserStore interface {
	InsertUser(ctx context.Context, u *domain.User) error
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	FindUserByID(ctx context.Context, id string) (*domain.User, error)
	UpdateUserVerification(ctx context.Context, userID string, verified bool, token string) error
}

// Mailer delivers verification tokens.
type Mailer interface {
	SendVerification(ctx context.Context, email, token string) error
}

// LogMailer writes verification tokens to the log instead of sending mail.
type LogMailer struct {
	Log *logger.Logger
}

func (m LogMailer) SendVerification(_ context.Context, email, token string) error {
	// Logged under "code" so the redactor leaves it readable in development.
	m.Log.Info("Verification code issued", "email", email, "code", token)
	return nil
}

// SignUpInput is a new account request.
type SignUpInput struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8,max=72,password_strength"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

// Session is an issued access token.
type Session struct {
	AccessToken string       `json:"accessToken"`
	ExpiresAt   time.Time    `json:"expiresAt"`
	User        *domain.User `json:"user"`
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Service implements sign-up, verification, sign-in and token checks.
type Service struct {
	users    UserStore
	mailer   Mailer
	secret   []byte
	tokenTTL time.Duration
	validate *validator.Validate
	log      *logger.Logger
	now      func() time.Time
}

// NewService returns an auth service signing tokens with secret.
func NewService(users UserStore, mailer Mailer, secret string, tokenTTL time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	if mailer == nil {
		mailer = LogMailer{Log: log}
	}
	return &Service{
		users:    users,
		mailer:   mailer,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		validate: NewValidator(),
		log:      log.With("service", "AuthService"),
		now:      time.Now,
	}
}

// NewValidator returns a validator with the password_strength rule registered.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("password_strength", func(fl validator.FieldLevel) bool {
		return StrongPassword(fl.Field().String())
	})
	return v
}

// StrongPassword requires an upper case letter, a lower case letter and a digit.
func StrongPassword(p string) bool {
	var upper, lower, digit bool
	for _, r := range p {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp creates an unverified account and sends its verification code.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*domain.User, error) {
	in.Email = normalizeEmail(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("invalid sign-up: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	u := &domain.User{
		Email:             in.Email,
		PasswordHash:      string(hash),
		VerificationToken: uuid.NewString(),
		CreatedAt:         s.now(),
	}
	if err := s.users.InsertUser(ctx, u); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	if err := s.mailer.SendVerification(ctx, u.Email, u.VerificationToken); err != nil {
		s.log.Warn("Failed to send verification", "email", u.Email, "error", err)
	}
	return u, nil
}

// Verify confirms an email address with its code and signs the user in.
func (s *Service) Verify(ctx context.Context, email, code string) (*Session, error) {
	u, err := s.users.FindUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if u == nil || u.EmailVerified || !codeMatches(u.VerificationToken, code) {
		return nil, ErrInvalidToken
	}
	if err := s.users.UpdateUserVerification(ctx, u.ID, true, ""); err != nil {
		return nil, err
	}
	u.EmailVerified = true
	u.VerificationToken = ""
	return s.issue(u)
}

// codeMatches compares verification codes in constant time.
func codeMatches(want, got string) bool {
	if want == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// Resend issues a fresh verification code. Unknown or already verified
// addresses are ignored so the endpoint does not reveal accounts.
func (s *Service) Resend(ctx context.Context, email string) error {
	u, err := s.users.FindUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return err
	}
	if u == nil || u.EmailVerified {
		return nil
	}
	code := uuid.NewString()
	if err := s.users.UpdateUserVerification(ctx, u.ID, false, code); err != nil {
		return err
	}
	return s.mailer.SendVerification(ctx, u.Email, code)
}

// SignIn checks credentials and issues a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.FindUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.EmailVerified {
		return nil, ErrEmailNotVerified
	}
	return s.issue(u)
}

// Authenticate validates an access token and returns the user id it was issued to.
func (s *Service) Authenticate(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || c.Subject == "" {
		return "", ErrInvalidToken
	}
	return c.Subject, nil
}

// Session returns the user behind a valid access token.
func (s *Service) Session(ctx context.Context, tokenString string) (*domain.User, error) {
	userID, err := s.Authenticate(tokenString)
	if err != nil {
		return nil, err
	}
	u, err := s.users.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidToken
	}
	return u, nil
}

func (s *Service) issue(u *domain.User) (*Session, error) {
	now := s.now()
	expires := now.Add(s.tokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &Session{AccessToken: signed, ExpiresAt: expires, User: u}, nil
}
