// Package auth manages shop accounts and the signed session tokens that
// identify the caller of every lifecycle operation.
package auth

import (
	"context"
	"strings"
	"time"

	"github.com/Glen-Yegon/niapay-carwash1/internal/logger"
	"github.com/Glen-Yegon/niapay-carwash1/internal/models"
	"github.com/Glen-Yegon/niapay-carwash1/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

var (
	ErrInvalidInput       = errors.New("invalid account details")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRoleMismatch       = errors.New("role mismatch")
	ErrUnauthenticated    = errors.New("not signed in")
	ErrForbidden          = errors.New("manager role required")
	ErrManagerSignUp      = errors.New("manager accounts require a manager session")
	ErrUnavailable        = errors.New("account store unavailable")
)

type Claims struct {
	Name string      `json:"name"`
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

type SignUpInput struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
	Role            string
	// Creator is the signed-in caller, if any. Once a manager account exists,
	// further manager accounts can only be created by a manager.
	Creator *models.Actor
}

type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

type Service struct {
	users      store.UserStore
	secret     []byte
	ttl        time.Duration
	bcryptCost int
	now        func() time.Time
	log        *logger.Logger
}

type Option func(*Service)

func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(log *logger.Logger) Option {
	return func(s *Service) { s.log = log }
}

func NewService(users store.UserStore, secret string, ttl time.Duration, opts ...Option) *Service {
	s := &Service{
		users:      users,
		secret:     []byte(secret),
		ttl:        ttl,
		bcryptCost: bcrypt.DefaultCost,
		now:        func() time.Time { return time.Now().UTC() },
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) SignUp(ctx context.Context, input SignUpInput) (Session, error) {
	name := strings.TrimSpace(input.Name)
	email := strings.ToLower(strings.TrimSpace(input.Email))

	var missing []string
	if name == "" {
		missing = append(missing, "name")
	}
	if email == "" {
		missing = append(missing, "email")
	}
	if input.Password == "" {
		missing = append(missing, "password")
	}
	if strings.TrimSpace(input.Role) == "" {
		missing = append(missing, "role")
	}
	if len(missing) > 0 {
		return Session{}, errors.Wrapf(ErrInvalidInput, "missing required fields: %s", strings.Join(missing, ", "))
	}
	if !strings.Contains(email, "@") {
		return Session{}, errors.Wrap(ErrInvalidInput, "email is not valid")
	}
	if input.Password != input.ConfirmPassword {
		return Session{}, errors.Wrap(ErrInvalidInput, "passwords do not match")
	}
	if len(input.Password) < minPasswordLength {
		return Session{}, errors.Wrapf(ErrInvalidInput, "password must be at least %d characters", minPasswordLength)
	}
	role, ok := models.ParseRole(input.Role)
	if !ok {
		return Session{}, errors.Wrap(ErrInvalidInput, "role must be staff or manager")
	}
	if role == models.RoleManager {
		if err := s.allowManagerSignUp(ctx, input.Creator); err != nil {
			return Session{}, err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return Session{}, errors.Wrap(err, "hash password")
	}
	user, err := s.users.CreateUser(ctx, models.User{
		Name:         name,
		Email:        email,
		Role:         role,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	})
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return Session{}, store.ErrEmailTaken
		}
		return Session{}, errors.WithMessage(ErrUnavailable, err.Error())
	}

	s.log.Info("account created", "user_id", user.UserID, "role", user.Role)
	return s.issue(user)
}

// allowManagerSignUp lets the first manager bootstrap the shop; after that
// only a manager session may add another.
func (s *Service) allowManagerSignUp(ctx context.Context, creator *models.Actor) error {
	if creator != nil && creator.Role == models.RoleManager {
		return nil
	}
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return errors.WithMessage(ErrUnavailable, err.Error())
	}
	for _, user := range users {
		if user.Role == models.RoleManager {
			s.log.Warn("manager sign-up rejected", "creator_role", creatorRole(creator))
			return ErrManagerSignUp
		}
	}
	return nil
}

func creatorRole(creator *models.Actor) string {
	if creator == nil {
		return "anonymous"
	}
	return string(creator.Role)
}

// Login checks the password and that the account holds the role the caller
// signed in as; a staff account cannot open the manager dashboard.
func (s *Service) Login(ctx context.Context, email, password, role string) (Session, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, errors.WithMessage(ErrUnavailable, err.Error())
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	if strings.TrimSpace(role) != "" {
		requested, ok := models.ParseRole(role)
		if !ok {
			return Session{}, errors.Wrap(ErrInvalidInput, "role must be staff or manager")
		}
		if requested != user.Role {
			s.log.Warn("login role mismatch", "user_id", user.UserID, "requested", requested)
			return Session{}, ErrRoleMismatch
		}
	}
	return s.issue(user)
}

// CurrentUser resolves a session token. Accounts removed after the token was
// issued are rejected.
func (s *Service) CurrentUser(ctx context.Context, token string) (models.Actor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.Actor{}, ErrUnauthenticated
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return models.Actor{}, ErrUnauthenticated
	}

	user, err := s.users.GetUser(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return models.Actor{}, ErrUnauthenticated
		}
		return models.Actor{}, errors.WithMessage(ErrUnavailable, err.Error())
	}
	return user.Actor(), nil
}

func (s *Service) ListUsers(ctx context.Context, actor models.Actor) ([]models.User, error) {
	if !actor.IsManager() {
		return nil, ErrForbidden
	}
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, errors.WithMessage(ErrUnavailable, err.Error())
	}
	return users, nil
}

// RemoveUser deletes an account permanently. Managers cannot remove their
// own account.
func (s *Service) RemoveUser(ctx context.Context, actor models.Actor, userID string) error {
	if !actor.IsManager() {
		return ErrForbidden
	}
	if userID == actor.UserID {
		return errors.Wrap(ErrInvalidInput, "cannot remove your own account")
	}
	if err := s.users.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return store.ErrUserNotFound
		}
		return errors.WithMessage(ErrUnavailable, err.Error())
	}
	s.log.Info("account removed", "user_id", userID, "manager", actor.Name)
	return nil
}

func (s *Service) issue(user models.User) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		Name: user.Name,
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, errors.Wrap(err, "sign session")
	}
	return Session{Token: signed, ExpiresAt: expiresAt, User: user}, nil
}
