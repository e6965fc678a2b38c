// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package sqlite

import (
	"context"
	"database/sql"

	parleyerr "github.com/parley-dev/parley/pkg/errors"
)

func (s *Store) SetPref(ctx context.Context, key, value string) error {
	if key == "" {
		return parleyerr.New(parleyerr.CodeStoreInvalidInput, "pref key must not be empty")
	}

	const q = `INSERT INTO prefs (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`

	if _, err := s.db.ExecContext(ctx, q, key, value); err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "setting pref %s", key)
	}
	return nil
}

func (s *Store) GetPref(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM prefs WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "getting pref %s", key)
	}
	return value, nil
}
