package auth

import (
	"context"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/DMS/errors"
	"github.com/teranos/DMS/logger"
)

// Service handles registration, login and token issuance
type Service struct {
	store  *Store
	jwt    *JWTManager
	logger *zap.SugaredLogger
}

// NewService creates a new auth service
func NewService(store *Store, jwt *JWTManager, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: store, jwt: jwt, logger: logger}
}

// Store returns the user store
func (s *Service) Store() *Store {
	return s.store
}

// Register creates a self-registered account.
// Only the first account may request a role above viewer; it becomes the bootstrap admin.
func (s *Service) Register(ctx context.Context, in UserCreate) (*User, error) {
	if in.Role == "" || in.Role == RoleViewer {
		return s.CreateUser(ctx, in)
	}
	user, err := s.createUser(ctx, in, s.store.CreateFirstUser)
	if errors.Is(err, ErrNotFirstUser) {
		return nil, errors.Wrap(errors.ErrForbidden, "Not authorized to register with role "+string(in.Role))
	}
	return user, err
}

// CreateUser validates in, hashes the password and stores the account
func (s *Service) CreateUser(ctx context.Context, in UserCreate) (*User, error) {
	return s.createUser(ctx, in, s.store.CreateUser)
}

func (s *Service) createUser(ctx context.Context, in UserCreate, insert func(context.Context, *User) error) (*User, error) {
	email, err := validateEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.FullName) == "" {
		return nil, errors.NewInvalidRequestError("full_name is required")
	}
	role := in.Role
	if role == "" {
		role = RoleViewer
	}
	if role, err = ParseRole(string(role)); err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		Email:          email,
		FullName:       strings.TrimSpace(in.FullName),
		Role:           role,
		IsActive:       true,
		HashedPassword: hash,
	}
	if err := insert(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Infow("User registered",
		logger.FieldUserID, user.ID,
		logger.FieldEmail, user.Email,
		logger.FieldRole, user.Role)
	return user, nil
}

// Authenticate checks an email/password pair
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.IsNotFoundError(err) {
		return nil, errors.Wrap(errors.ErrUnauthorized, "Incorrect email or password")
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(user.HashedPassword, password) {
		s.logger.Debugw("Password mismatch", logger.FieldEmail, user.Email)
		return nil, errors.Wrap(errors.ErrUnauthorized, "Incorrect email or password")
	}
	if !user.IsActive {
		return nil, errors.Wrap(errors.ErrForbidden, "Inactive user")
	}
	return user, nil
}

// IssueToken returns a bearer token for user
func (s *Service) IssueToken(user *User) (*Token, error) {
	signed, err := s.jwt.GenerateToken(user)
	if err != nil {
		return nil, err
	}
	return &Token{AccessToken: signed, TokenType: "bearer"}, nil
}

// Login authenticates and issues a token in one step
func (s *Service) Login(ctx context.Context, email, password string) (*Token, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.IssueToken(user)
}

// UserFromToken resolves a bearer token to the current, active account.
// Role comes from the store, so demotions take effect before the token expires.
func (s *Service) UserFromToken(ctx context.Context, token string) (*User, error) {
	claims, err := s.jwt.ValidateToken(token)
	if err != nil {
		return nil, errors.Wrap(errors.ErrUnauthorized, "Could not validate credentials")
	}

	user, err := s.store.GetUserByEmail(ctx, claims.Email)
	if errors.IsNotFoundError(err) {
		return nil, errors.Wrap(errors.ErrUnauthorized, "Could not validate credentials")
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, errors.Wrap(errors.ErrForbidden, "Inactive user")
	}
	return user, nil
}

// UpdateUser applies a partial update, re-hashing a new password
func (s *Service) UpdateUser(ctx context.Context, id int64, update UserUpdate) (*User, error) {
	if update.Email != nil {
		email, err := validateEmail(*update.Email)
		if err != nil {
			return nil, err
		}
		update.Email = &email
	}
	if update.Role != nil {
		role, err := ParseRole(string(*update.Role))
		if err != nil {
			return nil, err
		}
		update.Role = &role
	}

	var hash string
	if update.Password != nil {
		var err error
		if hash, err = HashPassword(*update.Password); err != nil {
			return nil, err
		}
	}
	return s.store.UpdateUser(ctx, id, update, hash)
}

func validateEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Address != strings.TrimSpace(raw) {
		return "", errors.NewInvalidRequestError("invalid email address %q", raw)
	}
	return normalizeEmail(addr.Address), nil
}
