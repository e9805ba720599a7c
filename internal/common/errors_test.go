package common

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowError(t *testing.T) {
	err := &RowError{Row: 12, InvoiceID: "INV-7", Err: ErrUnclassifiedRow}

	assert.Equal(t, "row 12 (invoice INV-7): unclassified row", err.Error())
	assert.ErrorIs(t, err, ErrUnclassifiedRow)

	noID := &RowError{Row: 3, Err: ErrInvalidRow}
	assert.Equal(t, "row 3: invalid row", noID.Error())
}

func TestReferenceRowError(t *testing.T) {
	err := fmt.Errorf("allocation failed: %w", &ReferenceRowError{
		Row:      4,
		State:    "Total",
		Contract: "",
		Err:      ErrInvalidReferenceTable,
	})

	assert.ErrorIs(t, err, ErrInvalidReferenceTable)

	var refErr *ReferenceRowError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, 4, refErr.Row)
	assert.Contains(t, err.Error(), `state "Total"`)
}

func TestUserError(t *testing.T) {
	wrapped := NewUserError("could not load export", ErrNoInvoiceData)
	assert.Equal(t, "could not load export: no invoice data after filtering", wrapped.Error())
	assert.ErrorIs(t, wrapped, ErrNoInvoiceData)

	bare := NewUserError("nothing to do", nil)
	assert.Equal(t, "nothing to do", bare.Error())
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "rate limit", err: fmt.Errorf("sheets: %w", ErrRateLimit), want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "retryable wrapper", err: &RetryableError{Err: errors.New("boom"), Retryable: true}, want: true},
		{name: "non retryable wrapper", err: &RetryableError{Err: errors.New("boom")}, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()
	opts := RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		err := WithRetry(ctx, func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		}, opts)
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		err := WithRetry(ctx, func() error {
			calls++
			return errors.New("still broken")
		}, opts)
		require.ErrorIs(t, err, ErrMaxRetries)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on non retryable", func(t *testing.T) {
		calls := 0
		err := WithRetry(ctx, func() error {
			calls++
			return &RetryableError{Err: errors.New("bad request")}
		}, opts)
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("honors cancellation", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		err := WithRetry(cancelled, func() error {
			return errors.New("transient")
		}, RetryOptions{MaxAttempts: 5, InitialDelay: time.Second})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
