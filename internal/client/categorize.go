package client

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net"
	"strings"

	"github.com/kjstillabower/sunshine-wear/internal/circuitbreaker"
)

// ErrorCategory labels weatherApiErrorsTotal and ingest log lines.
type ErrorCategory string

const (
	ErrorCategoryTimeout          ErrorCategory = "timeout"
	ErrorCategoryNetwork          ErrorCategory = "network"
	ErrorCategoryInvalidAPIKey    ErrorCategory = "invalid_api_key"
	ErrorCategoryLocationNotFound ErrorCategory = "location_not_found"
	ErrorCategoryRateLimited      ErrorCategory = "rate_limited"
	ErrorCategoryUpstream5xx      ErrorCategory = "upstream_5xx"
	ErrorCategoryCircuitOpen      ErrorCategory = "circuit_open"
	ErrorCategoryEmpty            ErrorCategory = "empty"
	ErrorCategoryParsing          ErrorCategory = "parsing"
	ErrorCategoryStore            ErrorCategory = "store"
	ErrorCategoryUnknown          ErrorCategory = "unknown"
)

var sentinelCategories = []struct {
	err error
	cat ErrorCategory
}{
	{context.DeadlineExceeded, ErrorCategoryTimeout},
	{context.Canceled, ErrorCategoryTimeout},
	{circuitbreaker.ErrOpen, ErrorCategoryCircuitOpen},
	{ErrInvalidAPIKey, ErrorCategoryInvalidAPIKey},
	{ErrLocationNotFound, ErrorCategoryLocationNotFound},
	{ErrRateLimited, ErrorCategoryRateLimited},
	{ErrUpstreamFailure, ErrorCategoryUpstream5xx},
	{ErrEmptyForecast, ErrorCategoryEmpty},
	{sql.ErrConnDone, ErrorCategoryStore},
	{sql.ErrTxDone, ErrorCategoryStore},
}

// CategorizeError maps err to a stable label. Wrapped sentinels and typed
// errors win; message matching is the last resort for errors from drivers
// that do not wrap.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	for _, s := range sentinelCategories {
		if errors.Is(err, s.err) {
			return s.cat
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorCategoryTimeout
		}
		return ErrorCategoryNetwork
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return ErrorCategoryParsing
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection"):
		return ErrorCategoryNetwork
	case strings.Contains(msg, "timeout"):
		return ErrorCategoryTimeout
	case strings.Contains(msg, "parse"):
		return ErrorCategoryParsing
	case strings.Contains(msg, "sql"), strings.Contains(msg, "upsert"), strings.Contains(msg, "database"):
		return ErrorCategoryStore
	}
	return ErrorCategoryUnknown
}
