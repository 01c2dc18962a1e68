package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrappersKeepSentinelIdentity(t *testing.T) {
	err := NotFound("request %s", "abc")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "request abc: not found", err.Error())

	assert.ErrorIs(t, InvalidState("cannot cancel a %s request", "COMPLETED"), ErrInvalidState)
	assert.ErrorIs(t, MissingReason("reason required"), ErrMissingReason)
	assert.ErrorIs(t, Conflict("vehicle %s is %s", "51A", "IN_USE"), ErrConflict)
}

func TestSentinelSurvivesFurtherWrapping(t *testing.T) {
	err := fmt.Errorf("assign resources: %w", Conflict("double booking"))
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, http.StatusConflict, Status(err))
}

func TestStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, Status(ErrNotFound))
	assert.Equal(t, http.StatusConflict, Status(ErrConflict))
	assert.Equal(t, http.StatusBadRequest, Status(ErrInvalidState))
	assert.Equal(t, http.StatusBadRequest, Status(ErrMissingReason))
	assert.Equal(t, http.StatusInternalServerError, Status(errors.New("disk on fire")))
}
