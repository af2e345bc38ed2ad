package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// ErrSessionClosed is returned when committing a finished session.
var ErrSessionClosed = errors.New("repo: session already closed")

// Session is one unit of work bound to a database transaction.
type Session interface {
	DB() *gorm.DB
	Commit() error
	Rollback() error
	Close() error
}

// Sessions opens request-scoped sessions on DB.
type Sessions struct {
	DB *gorm.DB
}

// Begin starts a transaction bound to ctx, so cancelling the request
// aborts in-flight statements.
func (s Sessions) Begin(ctx context.Context) (Session, error) {
	if s.DB == nil {
		return nil, &OpError{Op: "begin", Err: errors.New("no database configured")}
	}
	tx := s.DB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, &OpError{Op: "begin", Err: tx.Error}
	}
	return &txSession{tx: tx}, nil
}

type txSession struct {
	tx   *gorm.DB
	done bool
}

func (s *txSession) DB() *gorm.DB { return s.tx }

func (s *txSession) Commit() error {
	if s.done {
		return ErrSessionClosed
	}
	s.done = true
	if err := s.tx.Commit().Error; err != nil {
		return &OpError{Op: "commit", Err: err}
	}
	return nil
}

func (s *txSession) Rollback() error {
	if s.done {
		return nil
	}
	s.done = true
	if err := s.tx.Rollback().Error; err != nil {
		return &OpError{Op: "rollback", Err: err}
	}
	return nil
}

// Close rolls back anything not committed. Safe to call more than once.
func (s *txSession) Close() error { return s.Rollback() }
