package validator

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	errx "github.com/eflow-agent/server/internal/core/error"
)

// statusCoder is implemented by upstream API errors carrying an HTTP status.
type statusCoder interface {
	StatusCode() int
}

var statusHints = map[int]string{
	http.StatusBadRequest:          "Bad Request - the request parameters are invalid.",
	http.StatusUnauthorized:        "Unauthorized - check your API key.",
	http.StatusForbidden:           "Forbidden - you don't have permission to access this endpoint.",
	http.StatusNotFound:            "Not Found - the endpoint or resource doesn't exist.",
	http.StatusTooManyRequests:     "Rate Limit Exceeded - please wait before making more requests.",
	http.StatusInternalServerError: "Internal Server Error - the Everflow API encountered an error.",
	http.StatusBadGateway:          "Bad Gateway - the Everflow API is temporarily unavailable.",
	http.StatusServiceUnavailable:  "Service Unavailable - the Everflow API is down for maintenance.",
}

// Describe turns a failed upstream call into a user-facing message with status
// hints, an endpoint suggestion and any payload problems.
func (v *Validator) Describe(err error, path, method string, payload map[string]any) string {
	if err == nil {
		return ""
	}

	var lines []string

	if errors.Is(err, errx.ErrValidation) {
		lines = append(lines, "API request validation failed", "", err.Error())
		return strings.Join(lines, "\n")
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		status := sc.StatusCode()
		lines = append(lines, fmt.Sprintf("API error (status %d)", status), "")
		if hint, ok := statusHints[status]; ok {
			lines = append(lines, hint)
		} else {
			lines = append(lines, fmt.Sprintf("Unexpected error (status %d)", status))
		}
		lines = append(lines, "", fmt.Sprintf("Endpoint: %s %s", strings.ToUpper(method), path))

		if status == http.StatusNotFound {
			if suggestion, ok := v.SuggestEndpoint("operation on " + path); ok && suggestion != path {
				lines = append(lines, "", fmt.Sprintf("Suggestion: did you mean %s?", suggestion))
			}
		}

		if len(payload) > 0 {
			if res := v.ValidatePayload(path, payload); !res.Valid {
				lines = append(lines, "", "Payload issues:")
				for _, e := range res.Errors {
					lines = append(lines, "  - "+e)
				}
				if len(res.Suggestions) > 0 {
					lines = append(lines, "", "Suggestions:")
					for _, s := range res.Suggestions {
						lines = append(lines, "  - "+s)
					}
				}
			}
		}
		return strings.Join(lines, "\n")
	}

	lines = append(lines, "API error", "", err.Error(), "", "Endpoint: "+path)
	if suggestion, ok := v.SuggestEndpoint("operation on " + path); ok {
		lines = append(lines, "", fmt.Sprintf("Suggestion: consider using %s", suggestion))
	}
	return strings.Join(lines, "\n")
}
