// Package errors provides database error classification utilities.
// The recovery executor needs to distinguish retryable failures (deadlocks,
// dropped connections) from ones that re-running can never fix.
package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// DatabaseErrorType represents the type of database error.
type DatabaseErrorType int

const (
	// ErrorTypeUnknown represents an unknown database error.
	ErrorTypeUnknown DatabaseErrorType = iota
	// ErrorTypeDuplicateKey represents a duplicate key constraint violation (MySQL 1062).
	ErrorTypeDuplicateKey
	// ErrorTypeNotFound represents a record not found error.
	ErrorTypeNotFound
	// ErrorTypeDeadlock represents a deadlock error (MySQL 1213).
	ErrorTypeDeadlock
	// ErrorTypeConnectionError represents a database connection error.
	ErrorTypeConnectionError
)

// DatabaseError wraps a database error with classification information.
type DatabaseError struct {
	Type         DatabaseErrorType
	OriginalErr  error
	MySQLErrCode uint16
	Message      string
}

// Error implements the error interface.
func (e *DatabaseError) Error() string {
	if e.MySQLErrCode > 0 {
		return fmt.Sprintf("%s (MySQL error %d): %v", e.Message, e.MySQLErrCode, e.OriginalErr)
	}
	return fmt.Sprintf("%s: %v", e.Message, e.OriginalErr)
}

// Unwrap returns the underlying error for errors.Is and errors.As compatibility.
func (e *DatabaseError) Unwrap() error {
	return e.OriginalErr
}

// Retryable reports whether re-running the failed statement has a chance of
// succeeding without any other state change.
func (e *DatabaseError) Retryable() bool {
	return e.Type == ErrorTypeDeadlock || e.Type == ErrorTypeConnectionError
}

// ClassifyDBError classifies a database error into a specific error type.
//
// It handles GORM errors and MySQL-specific errors:
//   - ErrRecordNotFound → ErrorTypeNotFound
//   - MySQL 1062 (Duplicate entry) → ErrorTypeDuplicateKey
//   - MySQL 1213 (Deadlock) → ErrorTypeDeadlock
//   - Connection errors → ErrorTypeConnectionError
func ClassifyDBError(err error) *DatabaseError {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &DatabaseError{
			Type:        ErrorTypeNotFound,
			OriginalErr: err,
			Message:     "record not found",
		}
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return classifyMySQLError(mysqlErr)
	}

	if isConnectionError(err.Error()) {
		return &DatabaseError{
			Type:        ErrorTypeConnectionError,
			OriginalErr: err,
			Message:     "database connection error",
		}
	}

	return &DatabaseError{
		Type:        ErrorTypeUnknown,
		OriginalErr: err,
		Message:     "unknown database error",
	}
}

// classifyMySQLError classifies a MySQL-specific error.
func classifyMySQLError(err *mysql.MySQLError) *DatabaseError {
	switch err.Number {
	case 1062: // ER_DUP_ENTRY
		return &DatabaseError{
			Type:         ErrorTypeDuplicateKey,
			OriginalErr:  err,
			MySQLErrCode: err.Number,
			Message:      "duplicate key constraint violation",
		}

	case 1213: // ER_LOCK_DEADLOCK
		return &DatabaseError{
			Type:         ErrorTypeDeadlock,
			OriginalErr:  err,
			MySQLErrCode: err.Number,
			Message:      "deadlock detected",
		}

	default:
		return &DatabaseError{
			Type:         ErrorTypeUnknown,
			OriginalErr:  err,
			MySQLErrCode: err.Number,
			Message:      "MySQL error",
		}
	}
}

// isConnectionError matches common driver connection failure messages.
func isConnectionError(msg string) bool {
	patterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"invalid connection",
		"bad connection",
		"i/o timeout",
	}

	lower := strings.ToLower(msg)
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
