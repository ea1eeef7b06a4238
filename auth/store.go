package auth

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/teranos/DMS/db"
	"github.com/teranos/DMS/errors"
)

const userColumns = `id, email, hashed_password, full_name, role, is_active, created_at, updated_at`

// Store handles persistence of users
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a new user store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*User, error) {
	user := &User{}
	var role string
	err := row.Scan(&user.ID, &user.Email, &user.HashedPassword, &user.FullName,
		&role, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	user.Role = Role(role)
	return user, nil
}

// ErrNotFirstUser is returned by CreateFirstUser when any account already exists
var ErrNotFirstUser = errors.New("users already exist")

// CreateUser inserts user, whose HashedPassword must already be set.
// ID and timestamps are filled in on success.
func (s *Store) CreateUser(ctx context.Context, user *User) error {
	return s.insertUser(ctx, user, `INSERT INTO users (email, hashed_password, full_name, role, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
}

// CreateFirstUser inserts user only if the table is empty. The emptiness check
// and the insert are one statement, so concurrent callers cannot both succeed.
func (s *Store) CreateFirstUser(ctx context.Context, user *User) error {
	return s.insertUser(ctx, user, `INSERT INTO users (email, hashed_password, full_name, role, is_active, created_at, updated_at)
		 SELECT ?, ?, ?, ?, ?, ?, ? WHERE NOT EXISTS (SELECT 1 FROM users)`)
}

func (s *Store) insertUser(ctx context.Context, user *User, query string) error {
	now := s.now()
	user.Email = normalizeEmail(user.Email)
	if user.Role == "" {
		user.Role = RoleViewer
	}

	res, err := s.db.ExecContext(ctx, query,
		user.Email, user.HashedPassword, user.FullName, string(user.Role), user.IsActive, now, now,
	)
	if db.IsUniqueViolation(err) {
		return errors.NewConflictError("Email already registered")
	}
	if err != nil {
		return errors.Wrap(err, "failed to create user")
	}
	if n, err := res.RowsAffected(); err != nil {
		return errors.Wrap(err, "failed to read rows affected")
	} else if n == 0 {
		return ErrNotFirstUser
	}

	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to read user id")
	}
	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// GetUserByID finds a user by ID
func (s *Store) GetUserByID(ctx context.Context, id int64) (*User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("User not found")
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get user %d", id)
	}
	return user, nil
}

// GetUserByEmail finds a user by email (case-insensitive)
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? COLLATE NOCASE`, normalizeEmail(email)))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("User not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user by email")
	}
	return user, nil
}

// ListUsers returns users ordered by ID with offset pagination
func (s *Store) ListUsers(ctx context.Context, skip, limit int) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY id LIMIT ? OFFSET ?`, limit, skip)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list users")
	}
	defer rows.Close()

	users := make([]*User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan user")
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate users")
	}
	return users, nil
}

// UpdateUser applies a partial update. A new password must be passed already
// hashed in hashedPassword (empty = unchanged).
func (s *Store) UpdateUser(ctx context.Context, id int64, update UserUpdate, hashedPassword string) (*User, error) {
	var sets []string
	var args []interface{}

	if update.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, normalizeEmail(*update.Email))
	}
	if update.FullName != nil {
		sets = append(sets, "full_name = ?")
		args = append(args, *update.FullName)
	}
	if hashedPassword != "" {
		sets = append(sets, "hashed_password = ?")
		args = append(args, hashedPassword)
	}
	if update.Role != nil {
		sets = append(sets, "role = ?")
		args = append(args, string(*update.Role))
	}
	if update.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *update.IsActive)
	}

	if len(sets) == 0 {
		return s.GetUserByID(ctx, id)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, s.now(), id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if db.IsUniqueViolation(err) {
		return nil, errors.NewConflictError("Email already registered")
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to update user %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errors.NewNotFoundError("User not found")
	}
	return s.GetUserByID(ctx, id)
}

// DeleteUser removes a user. Their documents keep existing with no owner.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete user %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("User not found")
	}
	return nil
}

// CountUsers returns the number of users
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count users")
	}
	return n, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
