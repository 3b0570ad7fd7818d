package main

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	errx "github.com/eflow-agent/server/internal/core/error"
	"github.com/eflow-agent/server/internal/everflow"
	"github.com/eflow-agent/server/internal/validator"
	"github.com/stretchr/testify/assert"
)

func TestDescribeFailure(t *testing.T) {
	v := validator.New(nil)

	blocked := fmt.Errorf("entity_report: %w", errx.WrapValidation(errors.New("missing required parameter: to")))
	msg, ok := describeFailure(v, blocked)
	assert.True(t, ok)
	assert.Contains(t, msg, "API request validation failed")
	assert.Contains(t, msg, "missing required parameter: to")

	apiErr := &everflow.APIError{Method: http.MethodGet, Path: "/v1/networks/affiliates", Status: http.StatusUnauthorized}
	msg, ok = describeFailure(v, fmt.Errorf("fetch: %w", apiErr))
	assert.True(t, ok)
	assert.Contains(t, msg, "check your API key")

	_, ok = describeFailure(v, errors.New("context canceled"))
	assert.False(t, ok)
}
