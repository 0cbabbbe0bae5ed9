package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lox/recoverytrack/internal/models"
)

// CreateUser inserts u. It returns ErrDuplicate if the email is taken.
func (s *Store) CreateUser(ctx context.Context, u models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`, u.ID, u.Email, u.PasswordHash, u.CreatedAt.UTC())
	if err != nil {
		if isConstraint(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at FROM users WHERE email = ?
	`, email)
	return scanUser(row)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at FROM users WHERE id = ?
	`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// GetProfile returns ErrNotFound until a profile has been saved.
func (s *Store) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, name, age, medications, contact_details, emergency_contact, updated_at
		FROM user_profiles WHERE user_id = ?
	`, userID)

	var p models.Profile
	var age, medications, contact, emergencyContact sql.NullString
	err := row.Scan(&p.UserID, &p.Name, &age, &medications, &contact, &emergencyContact, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	p.Age = age.String
	p.Medications = medications.String
	p.ContactDetails = contact.String
	p.EmergencyContact = emergencyContact.String
	return &p, nil
}

func (s *Store) SaveProfile(ctx context.Context, p models.Profile) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, name, age, medications, contact_details, emergency_contact, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			name = excluded.name,
			age = excluded.age,
			medications = excluded.medications,
			contact_details = excluded.contact_details,
			emergency_contact = excluded.emergency_contact,
			updated_at = excluded.updated_at
	`, p.UserID, p.Name, p.Age, p.Medications, p.ContactDetails, p.EmergencyContact, p.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}
