// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package trace

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/db47h/devsim"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/pkg/errors"
)

const (
	sqliteBatchSize = 256
	sqliteTimeout   = 5 * time.Second
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS transitions (
	run         TEXT    NOT NULL,
	pass        INTEGER NOT NULL,
	device      TEXT    NOT NULL,
	pin         TEXT    NOT NULL,
	state       INTEGER NOT NULL,
	recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS transitions_run_pass ON transitions (run, pass);
`

// SQLite is a Recorder that stores transitions in a SQLite database. Each
// SQLite recorder stores its transitions under a new run identifier.
//
// Transitions are written in batches. Write errors are logged and the first
// one is returned by Close.
//
type SQLite struct {
	db    *sql.DB
	run   string
	batch []devsim.Transition
	stamp []int64
	log   *slog.Logger
	err   error
}

// OpenSQLite opens or creates the database at path and returns a recorder for
// a new run. If l is nil, errors are not logged.
//
func OpenSQLite(path string, l *slog.Logger) (*SQLite, error) {
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, errors.Wrap(err, "create database directory")
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=%d", path, sqliteTimeout.Milliseconds()))
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), sqliteTimeout)
	defer cancel()
	if _, err = db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create schema")
	}
	run := NewRunID()
	return &SQLite{
		db:    db,
		run:   run,
		batch: make([]devsim.Transition, 0, sqliteBatchSize),
		stamp: make([]int64, 0, sqliteBatchSize),
		log:   l.With("run", run),
	}, nil
}

// Run returns the run identifier.
//
func (s *SQLite) Run() string { return s.run }

// Record implements devsim.Recorder.
//
func (s *SQLite) Record(t devsim.Transition) {
	s.batch = append(s.batch, t)
	s.stamp = append(s.stamp, time.Now().UnixNano())
	if len(s.batch) >= sqliteBatchSize {
		s.Flush()
	}
}

// Flush writes buffered transitions to the database.
//
func (s *SQLite) Flush() error {
	if len(s.batch) == 0 {
		return nil
	}
	err := s.write()
	s.batch, s.stamp = s.batch[:0], s.stamp[:0]
	if err != nil {
		s.log.Error("trace write failed", "error", err)
		if s.err == nil {
			s.err = err
		}
	}
	return err
}

func (s *SQLite) write() error {
	ctx, cancel := context.WithTimeout(context.Background(), sqliteTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO transitions (run, pass, device, pin, state, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "prepare insert")
	}
	defer stmt.Close()
	for i, t := range s.batch {
		if _, err = stmt.ExecContext(ctx, s.run, int64(t.Pass), t.Device, t.Pin, t.State, s.stamp[i]); err != nil {
			tx.Rollback()
			return errors.Wrap(err, "insert transition")
		}
	}
	return errors.Wrap(tx.Commit(), "commit")
}

// Transitions returns the transitions recorded for a run, in recording order.
// Buffered transitions are flushed first.
//
func (s *SQLite) Transitions(run string) ([]devsim.Transition, error) {
	if err := s.Flush(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), sqliteTimeout)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `SELECT pass, device, pin, state FROM transitions WHERE run = ? ORDER BY rowid`, run)
	if err != nil {
		return nil, errors.Wrap(err, "query transitions")
	}
	defer rows.Close()

	var ts []devsim.Transition
	for rows.Next() {
		var t devsim.Transition
		var pass int64
		if err = rows.Scan(&pass, &t.Device, &t.Pin, &t.State); err != nil {
			return nil, errors.Wrap(err, "scan transition")
		}
		t.Pass = uint64(pass)
		ts = append(ts, t)
	}
	return ts, errors.Wrap(rows.Err(), "read transitions")
}

// Close flushes buffered transitions and closes the database. It returns the
// first write error encountered during the run, if any.
//
func (s *SQLite) Close() error {
	s.Flush()
	err := s.db.Close()
	if s.err != nil {
		return s.err
	}
	return errors.Wrap(err, "close database")
}
