package errors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorWrapAndUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(cause, ErrorTypeDatabase, "DB_ERROR", "Database operation failed")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "database")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAppErrorIsMatchesTypeAndCode(t *testing.T) {
	err := NewDatabaseError(fmt.Errorf("boom"))
	assert.True(t, errors.Is(err, ErrDatabaseError))
	assert.False(t, errors.Is(err, ErrEntryNotFound))
}

func TestAppErrorContext(t *testing.T) {
	err := NewValidationError("carb quantity must be positive").
		WithContext("quantity", -5)

	fields := err.LogFields()
	require.NotEmpty(t, fields)
	assert.Contains(t, fields, "quantity")
	assert.Contains(t, fields, -5)
}

func TestPredefinedConfigurationErrors(t *testing.T) {
	for _, err := range []*AppError{ErrMissingBasalRates, ErrMissingSensitivity, ErrMissingCarbRatios} {
		assert.Equal(t, ErrorTypeConfiguration, err.Type)
	}
}

func TestHandlerRoutesBySeverity(t *testing.T) {
	var buf bytes.Buffer
	handler := NewHandler(slog.New(slog.NewTextHandler(&buf, nil)))
	ctx := context.Background()

	handler.Handle(ctx, NewValidationError("carb quantity must be positive"))
	assert.Contains(t, buf.String(), "level=WARN")

	buf.Reset()
	handler.Handle(ctx, NewDatabaseError(fmt.Errorf("connection refused")))
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "connection refused")

	buf.Reset()
	handler.Handle(ctx, fmt.Errorf("plain failure"))
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "plain failure")

	buf.Reset()
	handler.Handle(ctx, nil)
	assert.Empty(t, buf.String())
}

func TestHandlerLogAndReturn(t *testing.T) {
	var buf bytes.Buffer
	handler := NewHandler(slog.New(slog.NewTextHandler(&buf, nil)))

	err := NewDatabaseError(fmt.Errorf("boom"))
	returned := handler.LogAndReturn(context.Background(), err)

	assert.Same(t, err, returned)
	assert.Contains(t, buf.String(), "level=ERROR")
}
