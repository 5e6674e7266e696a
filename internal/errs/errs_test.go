package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"ariac-fulfillment/internal/errs"

	"github.com/stretchr/testify/assert"
)

func TestServiceError(t *testing.T) {
	t.Run("Unavailable", func(t *testing.T) {
		err := errs.Unavailable("submit_order", errors.New("connection refused"))

		assert.ErrorIs(t, err, errs.ErrServiceUnavailable)
		assert.NotErrorIs(t, err, errs.ErrServiceCallFailed)
		assert.Equal(t, "submit_order: service unavailable: connection refused", err.Error())
	})

	t.Run("CallFailed", func(t *testing.T) {
		err := errs.CallFailed("move_carrier", "agv locked")

		assert.ErrorIs(t, err, errs.ErrServiceCallFailed)
		assert.Equal(t, "move_carrier: service call failed: agv locked", err.Error())
	})

	t.Run("Wrapped twice", func(t *testing.T) {
		err := fmt.Errorf("pick: %w", errs.CallFailed("pick_part", "gripper empty"))

		var se *errs.ServiceError
		assert.True(t, errors.As(err, &se))
		assert.Equal(t, "pick_part", se.Service)
	})
}

func TestInvalidPayload(t *testing.T) {
	err := errs.InvalidPayload("K1", "kitting payload missing")

	assert.ErrorIs(t, err, errs.ErrInvalidOrderPayload)
	assert.Contains(t, err.Error(), "order K1")
}
