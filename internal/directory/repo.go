// Package directory provides read-only user and group lookups. The transfer
// core resolves access rights and notification recipients through it but
// never mutates accounts.
package directory

import (
	"database/sql"
	"fmt"
	"strings"
)

// Repo handles database operations for users and groups.
type Repo struct {
	db *sql.DB
}

// NewRepo creates a new directory repository.
func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// GetByID retrieves a user by ID.
func (r *Repo) GetByID(id int64) (*User, error) {
	u := &User{}
	var created, updated sql.NullTime

	err := r.db.QueryRow(`
		SELECT id, username, display_name, email, deactivated, created_at, updated_at
		FROM users WHERE id = ?
	`, id).Scan(&u.ID, &u.Username, &u.DisplayName, &u.Email, &u.Deactivated, &created, &updated)
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}

	if created.Valid {
		u.CreatedAt = created.Time
	}
	if updated.Valid {
		u.UpdatedAt = updated.Time
	}

	return u, nil
}

// GetByUsername retrieves a user by username (case-insensitive).
func (r *Repo) GetByUsername(username string) (*User, error) {
	u := &User{}
	var created, updated sql.NullTime

	err := r.db.QueryRow(`
		SELECT id, username, display_name, email, deactivated, created_at, updated_at
		FROM users WHERE username = ? COLLATE NOCASE
	`, username).Scan(&u.ID, &u.Username, &u.DisplayName, &u.Email, &u.Deactivated, &created, &updated)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", username, err)
	}

	if created.Valid {
		u.CreatedAt = created.Time
	}
	if updated.Valid {
		u.UpdatedAt = updated.Time
	}

	return u, nil
}

// IsMemberOfAny reports whether the user belongs to at least one of the
// given groups. An empty group list is never a match.
func (r *Repo) IsMemberOfAny(userID int64, groupIDs []int64) (bool, error) {
	if len(groupIDs) == 0 {
		return false, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(groupIDs)), ",")
	args := make([]any, 0, len(groupIDs)+1)
	args = append(args, userID)
	for _, g := range groupIDs {
		args = append(args, g)
	}

	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM group_members
		WHERE user_id = ? AND group_id IN (`+placeholders+`)
	`, args...).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check group membership for user %d: %w", userID, err)
	}
	return count > 0, nil
}
