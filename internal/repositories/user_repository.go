package repositories

import (
	"database/sql"
	"errors"
	"strings"

	intconfig "temani/internal/config"
	"temani/internal/domain"
	"temani/internal/domain/models"
)

type UserRepository struct {
	DB *sql.DB
}

func (r UserRepository) db() *sql.DB {
	if r.DB != nil {
		return r.DB
	}
	return intconfig.DB
}

const userColumns = `id, name, email, password_hash, role, phone, COALESCE(payout_recipient, ''), created_at`

func scanUser(row interface{ Scan(dest ...any) error }) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Phone, &u.PayoutRecipient, &u.CreatedAt)
	return u, err
}

func (r UserRepository) Create(u models.User) (int64, error) {
	res, err := r.db().Exec(`
		INSERT INTO users (name, email, password_hash, role, phone)
		VALUES (?,?,?,?,?)`,
		strings.TrimSpace(u.Name), strings.ToLower(strings.TrimSpace(u.Email)),
		u.PasswordHash, u.Role, strings.TrimSpace(u.Phone))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r UserRepository) GetByID(id int64) (models.User, error) {
	row := r.db().QueryRow(`SELECT `+userColumns+` FROM users WHERE id=? LIMIT 1`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, domain.NotFoundError{Resource: "user", Err: err}
	}
	return u, err
}

func (r UserRepository) GetByEmail(email string) (models.User, error) {
	row := r.db().QueryRow(`SELECT `+userColumns+` FROM users WHERE email=? LIMIT 1`,
		strings.ToLower(strings.TrimSpace(email)))
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, domain.NotFoundError{Resource: "user", Err: err}
	}
	return u, err
}

// PayoutRecipient returns the companion's processor recipient id, or
// empty when payout onboarding never finished.
func (r UserRepository) PayoutRecipient(id int64) (string, error) {
	var rec string
	err := r.db().QueryRow(`SELECT COALESCE(payout_recipient, '') FROM users WHERE id=?`, id).Scan(&rec)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.NotFoundError{Resource: "user", Err: err}
	}
	return rec, err
}
