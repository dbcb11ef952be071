package remotestore

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantKind      Kind
		wantRetryable bool
	}{
		{
			name:          "connection refused",
			err:           errors.New("dial tcp 127.0.0.1:3306: connect: connection refused"),
			wantKind:      KindUnreachable,
			wantRetryable: true,
		},
		{
			name:          "bad connection",
			err:           fmt.Errorf("exec: %w", driver.ErrBadConn),
			wantKind:      KindUnreachable,
			wantRetryable: true,
		},
		{
			name:          "deadline exceeded",
			err:           context.DeadlineExceeded,
			wantKind:      KindUnreachable,
			wantRetryable: true,
		},
		{
			name:          "deadlock",
			err:           &mysql.MySQLError{Number: 1213, Message: "Deadlock found"},
			wantKind:      KindUnreachable,
			wantRetryable: true,
		},
		{
			name:     "access denied",
			err:      &mysql.MySQLError{Number: 1045, Message: "Access denied"},
			wantKind: KindAuth,
		},
		{
			name:     "missing parent session",
			err:      fmt.Errorf("upsert card: %w", &mysql.MySQLError{Number: 1452, Message: "foreign key constraint fails"}),
			wantKind: KindConflict,
		},
		{
			name:     "duplicate entry",
			err:      &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"},
			wantKind: KindConflict,
		},
		{
			name:     "data too long",
			err:      &mysql.MySQLError{Number: 1406, Message: "Data too long for column 'title'"},
			wantKind: KindValidation,
		},
		{
			name:     "invalid json",
			err:      &mysql.MySQLError{Number: 3140, Message: "Invalid JSON text"},
			wantKind: KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("op", tt.err)
			assert.Equal(t, tt.wantKind, KindOf(got))
			assert.Equal(t, tt.wantRetryable, IsRetryable(got))
			assert.Equal(t, !tt.wantRetryable, IsRejected(got))
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassify_KeepsClassifiedErrors(t *testing.T) {
	original := NewError(KindAuth, "inner", ErrAnonymous)
	got := classify("outer", fmt.Errorf("wrapped: %w", original))
	assert.Equal(t, KindAuth, KindOf(got))
	assert.ErrorIs(t, got, ErrAnonymous)
}

func TestError(t *testing.T) {
	err := NewError(KindValidation, "upsert card", errors.New("title is required"))
	assert.Equal(t, "remote upsert card (validation): title is required", err.Error())
	assert.Nil(t, classify("op", nil))
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRejected(nil))
	assert.Equal(t, "kind(9)", Kind(9).String())
}
