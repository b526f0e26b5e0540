package db

import (
	"context"
	"database/sql"
	"fmt"

	"tagbox/internal/models"
)

// GetUser returns nil, nil when no such user exists.
func (db *DB) GetUser(ctx context.Context, username string) (*models.User, error) {
	users, err := db.GetUsers(ctx, username)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}
	return users[0], nil
}

// GetUsers loads the named users with their rights and attributes. Unknown
// names are skipped.
func (db *DB) GetUsers(ctx context.Context, usernames ...string) ([]*models.User, error) {
	if len(usernames) == 0 {
		return nil, nil
	}
	in := placeholders(len(usernames))
	args := stringArgs(usernames)
	return db.loadUsers(ctx,
		"SELECT username, passhash FROM users WHERE username IN ("+in+") ORDER BY username", args,
		"username IN ("+in+")", args)
}

func (db *DB) ListUsers(ctx context.Context) ([]*models.User, error) {
	return db.loadUsers(ctx, "SELECT username, passhash FROM users ORDER BY username", nil, "1 = 1", nil)
}

func (db *DB) loadUsers(ctx context.Context, query string, args []any, childWhere string, childArgs []any) ([]*models.User, error) {
	rows, err := db.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	byName := make(map[string]*models.User)
	for rows.Next() {
		user := models.NewUser("")
		if err := rows.Scan(&user.Username, &user.PassHash); err != nil {
			return nil, err
		}
		users = append(users, user)
		byName[user.Username] = user
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}

	err = db.scanPairs(ctx, "SELECT username, app_right FROM user_rights WHERE "+childWhere, childArgs, func(username, value string) error {
		user, ok := byName[username]
		if !ok {
			return nil
		}
		right, err := models.ParseRight(value)
		if err != nil {
			return fmt.Errorf("user %q: %w", username, err)
		}
		user.AddRight(right)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = db.scanPairs(ctx, "SELECT username, attribute FROM user_attributes WHERE "+childWhere, childArgs, func(username, value string) error {
		user, ok := byName[username]
		if !ok {
			return nil
		}
		attr, err := models.ParseAttribute(value)
		if err != nil {
			return fmt.Errorf("user %q: %w", username, err)
		}
		user.AddAttribute(attr)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// PutUser inserts or replaces the user. Rights and attributes are
// replaced wholesale: anything absent from user is removed.
func (db *DB) PutUser(ctx context.Context, user *models.User) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, db.rebind(
			`INSERT INTO users (username, passhash) VALUES (?, ?)
			ON CONFLICT (username) DO UPDATE SET passhash = excluded.passhash`),
			user.Username, user.PassHash)
		if err != nil {
			return fmt.Errorf("upsert user %q: %w", user.Username, err)
		}
		if _, err := tx.ExecContext(ctx, db.rebind("DELETE FROM user_rights WHERE username = ?"), user.Username); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, db.rebind("DELETE FROM user_attributes WHERE username = ?"), user.Username); err != nil {
			return err
		}
		for _, right := range user.RightList() {
			if _, err := tx.ExecContext(ctx, db.rebind("INSERT INTO user_rights (username, app_right) VALUES (?, ?)"), user.Username, string(right)); err != nil {
				return err
			}
		}
		for _, attr := range user.AttributeList() {
			if _, err := tx.ExecContext(ctx, db.rebind("INSERT INTO user_attributes (username, attribute) VALUES (?, ?)"), user.Username, string(attr)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (db *DB) scanPairs(ctx context.Context, query string, args []any, fn func(key, value string) error) error {
	rows, err := db.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return rows.Err()
}
