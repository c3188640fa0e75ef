package auth

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/johoo26/myzhihu/internal/db"
	"github.com/johoo26/myzhihu/internal/models"
)

var (
	ErrDuplicateEmail    = errors.New("email already taken")
	ErrDuplicateUsername = errors.New("username already taken")
	ErrInvalidLogin      = errors.New("invalid email or password")
	ErrNoSession         = errors.New("session not found")
	ErrNoDefaultRole     = errors.New("no default role configured")
	ErrNotFound          = errors.New("user not found")
)

// ----------------------------
// Context helpers (for middleware and handlers)
// ----------------------------

type ctxKeyUserID struct{}

func WithUserID(ctx context.Context, uid int64) context.Context {
	return context.WithValue(ctx, ctxKeyUserID{}, uid)
}

func UserIDFrom(ctx context.Context) (int64, bool) {
	v := ctx.Value(ctxKeyUserID{})
	if v == nil {
		return 0, false
	}
	id, _ := v.(int64)
	return id, id != 0
}

// ----------------------------
// Register
// ----------------------------

// Register creates a user with a bcrypt hash of password. The role falls back
// to the default role, or the administrator role when email matches adminEmail.
func Register(ctx context.Context, d *db.DB, adminEmail, username, email, password string) (*models.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	username = strings.TrimSpace(username)

	if email == "" || username == "" || password == "" {
		return nil, errors.New("email, username and password are required")
	}
	if len(password) < 6 {
		return nil, errors.New("password must be at least 6 characters")
	}

	var exists int
	if err := d.QueryRowContext(ctx, d.Rebind(`SELECT COUNT(1) FROM users WHERE email = ?`), email).Scan(&exists); err != nil {
		return nil, err
	}
	if exists > 0 {
		return nil, ErrDuplicateEmail
	}
	if err := d.QueryRowContext(ctx, d.Rebind(`SELECT COUNT(1) FROM users WHERE username = ?`), username).Scan(&exists); err != nil {
		return nil, err
	}
	if exists > 0 {
		return nil, ErrDuplicateUsername
	}

	roleID, err := pickRole(ctx, d, adminEmail, email)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	_, err = d.ExecContext(ctx, d.Rebind(`
		INSERT INTO users (username, email, password_hash, avatar_hash, role_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), username, email, string(hash), models.EmailHash(email), roleID, time.Now().UTC())
	// In case of a race against the UNIQUE constraints:
	if isUniqueErr(err, "email") {
		return nil, ErrDuplicateEmail
	}
	if isUniqueErr(err, "username") {
		return nil, ErrDuplicateUsername
	}
	if err != nil {
		return nil, err
	}
	return UserByEmail(ctx, d, email)
}

func pickRole(ctx context.Context, d *db.DB, adminEmail, email string) (int64, error) {
	var roleID int64
	var err error
	if adminEmail != "" && email == strings.ToLower(adminEmail) {
		err = d.QueryRowContext(ctx, d.Rebind(`SELECT id FROM roles WHERE permissions = ?`), 0xFF).Scan(&roleID)
	} else {
		err = d.QueryRowContext(ctx, `SELECT id FROM roles WHERE is_default = TRUE`).Scan(&roleID)
	}
	if err == sql.ErrNoRows {
		return 0, ErrNoDefaultRole
	}
	return roleID, err
}

// ----------------------------
// Passwords
// ----------------------------

// Verify compares password against the stored hash; bcrypt's comparison is
// timing-safe.
func Verify(u *models.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

func SetPassword(ctx context.Context, d *db.DB, userID int64, password string) error {
	if len(password) < 6 {
		return errors.New("password must be at least 6 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	res, err := d.ExecContext(ctx, d.Rebind(`UPDATE users SET password_hash = ? WHERE id = ?`), string(hash), userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ----------------------------
// Account state
// ----------------------------

func Confirm(ctx context.Context, d *db.DB, userID int64) error {
	_, err := d.ExecContext(ctx, d.Rebind(`UPDATE users SET confirmed = TRUE WHERE id = ?`), userID)
	return err
}

// UpdateEmail moves the account to newEmail and re-derives the avatar hash.
// The uniqueness check runs here again so a stale change-email token cannot
// land on an address taken in the meantime.
func UpdateEmail(ctx context.Context, d *db.DB, userID int64, newEmail string) error {
	newEmail = strings.TrimSpace(strings.ToLower(newEmail))
	if newEmail == "" {
		return errors.New("email is required")
	}
	var exists int
	if err := d.QueryRowContext(ctx, d.Rebind(`SELECT COUNT(1) FROM users WHERE email = ?`), newEmail).Scan(&exists); err != nil {
		return err
	}
	if exists > 0 {
		return ErrDuplicateEmail
	}
	res, err := d.ExecContext(ctx, d.Rebind(`UPDATE users SET email = ?, avatar_hash = ? WHERE id = ?`),
		newEmail, models.EmailHash(newEmail), userID)
	if isUniqueErr(err, "email") {
		return ErrDuplicateEmail
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateProfile sets the free-text profile fields in one shot.
func UpdateProfile(ctx context.Context, d *db.DB, userID int64, aboutMe, description, location string) error {
	res, err := d.ExecContext(ctx, d.Rebind(
		`UPDATE users SET about_me = ?, description = ?, location = ? WHERE id = ?`),
		aboutMe, description, location, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ----------------------------
// Lookups
// ----------------------------

const userCols = `u.id, u.username, u.email, u.password_hash, u.confirmed, u.about_me,
	u.description, u.location, u.avatar_hash, u.role_id, r.permissions, u.created_at`

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Confirmed, &u.AboutMe,
		&u.Description, &u.Location, &u.AvatarHash, &u.RoleID, &u.Permissions, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func UserByID(ctx context.Context, d *db.DB, id int64) (*models.User, error) {
	return scanUser(d.QueryRowContext(ctx, d.Rebind(
		`SELECT `+userCols+` FROM users u JOIN roles r ON r.id = u.role_id WHERE u.id = ?`), id))
}

func UserByUsername(ctx context.Context, d *db.DB, username string) (*models.User, error) {
	return scanUser(d.QueryRowContext(ctx, d.Rebind(
		`SELECT `+userCols+` FROM users u JOIN roles r ON r.id = u.role_id WHERE u.username = ?`), username))
}

func UserByEmail(ctx context.Context, d *db.DB, email string) (*models.User, error) {
	return scanUser(d.QueryRowContext(ctx, d.Rebind(
		`SELECT `+userCols+` FROM users u JOIN roles r ON r.id = u.role_id WHERE u.email = ?`),
		strings.TrimSpace(strings.ToLower(email))))
}

// ----------------------------
// Login (creates a session with a UUID id and expiry)
// ----------------------------

func Login(ctx context.Context, d *db.DB, email, password string, lifetime time.Duration) (string, int64, error) {
	u, err := UserByEmail(ctx, d, email)
	if err == ErrNotFound {
		slog.Info("login failed", "email", email, "reason", "no user")
		return "", 0, ErrInvalidLogin
	}
	if err != nil {
		return "", 0, err
	}
	if !Verify(u, password) {
		slog.Info("login failed", "email", email, "reason", "bad password")
		return "", 0, ErrInvalidLogin
	}

	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, err
	}
	defer tx.Rollback()

	// One live session per user.
	if _, err := tx.ExecContext(ctx, d.Rebind(`DELETE FROM sessions WHERE user_id = ?`), u.ID); err != nil {
		return "", 0, err
	}

	sid := uuid.New().String()
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, d.Rebind(`
		INSERT INTO sessions (id, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)
	`), sid, u.ID, now.Add(lifetime), now); err != nil {
		return "", 0, err
	}

	if err := tx.Commit(); err != nil {
		return "", 0, err
	}
	return sid, u.ID, nil
}

func Logout(ctx context.Context, d *db.DB, sid string) error {
	_, err := d.ExecContext(ctx, d.Rebind(`DELETE FROM sessions WHERE id = ?`), sid)
	return err
}

func UserFromSession(ctx context.Context, d *db.DB, sid string) (int64, time.Time, error) {
	var uid int64
	var exp time.Time
	err := d.QueryRowContext(ctx, d.Rebind(
		`SELECT user_id, expires_at FROM sessions WHERE id = ?`), sid).Scan(&uid, &exp)
	if err == sql.ErrNoRows {
		return 0, time.Time{}, ErrNoSession
	}
	if err != nil {
		return 0, time.Time{}, err
	}
	return uid, exp, nil
}

// ----------------------------
// Helpers
// ----------------------------

func isUniqueErr(err error, col string) bool {
	// SQLite: "UNIQUE constraint failed: table.column"
	// Postgres: `duplicate key value violates unique constraint "table_column_key"`
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return (strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")) &&
		strings.Contains(msg, strings.ToLower(col))
}
