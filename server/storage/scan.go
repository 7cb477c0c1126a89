package storage

import (
	"database/sql"

	"github.com/wispberry-tech/sarao-auth/server"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser reads one user row, returning (nil, nil) for sql.ErrNoRows.
func scanUser(row rowScanner) (*server.User, error) {
	user := &server.User{}
	var lockedUntil, lastLoginAt sql.NullTime

	err := row.Scan(
		&user.ID, &user.Email, &user.Name, &user.Role, &user.PasswordHash, &user.IsActive,
		&user.LoginAttempts, &lockedUntil, &lastLoginAt, &user.LastLoginIP,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if lockedUntil.Valid {
		user.LockedUntil = &lockedUntil.Time
	}
	if lastLoginAt.Valid {
		user.LastLoginAt = &lastLoginAt.Time
	}
	return user, nil
}

func scanSecurityEvents(rows *sql.Rows) ([]*server.SecurityEvent, error) {
	var events []*server.SecurityEvent
	for rows.Next() {
		event := &server.SecurityEvent{}
		var userID sql.NullString
		if err := rows.Scan(
			&event.ID, &userID, &event.EventType, &event.Description,
			&event.IPAddress, &event.UserAgent, &event.Success, &event.CreatedAt); err != nil {
			return nil, err
		}
		if userID.Valid {
			event.UserID = &userID.String
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
