package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"reflect"
	"strings"
)

// Normalize reduces an arbitrary failure value to the text that is matched
// against and, for the generic bucket, shown to the user.
func Normalize(v any) string {
	switch t := v.(type) {
	case nil:
		return msgUnknown
	case error:
		return t.Error()
	case string:
		return t
	case map[string]any:
		if m, ok := t["message"].(string); ok && m != "" {
			return m
		}
		return flatten(t)
	case fmt.Stringer:
		return t.String()
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Struct, reflect.Slice, reflect.Array, reflect.Pointer:
		return flatten(v)
	}
	return fmt.Sprint(v)
}

func flatten(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return msgUnknownObject
	}
	return string(b)
}

// Classify maps a failure to exactly one bucket. Buckets are checked in a
// fixed order and the first match wins, so specific signatures (API key)
// take precedence over generic ones (network, 400, 503) that may appear in
// the same message.
func Classify(v any) *Error {
	var already *Error
	if err, ok := v.(error); ok && errors.As(err, &already) {
		return already
	}

	cause, _ := v.(error)
	if cause == nil {
		cause = errors.New(Normalize(v))
	}

	if errors.Is(cause, ErrEmptyResponse) {
		return &Error{Kind: KindEmptyResponse, Message: msgEmptyResponse, Cause: cause}
	}

	msg := Normalize(v)
	lower := strings.ToLower(msg)

	if containsAny(lower, "api key", "403", "permission denied", "permission_denied") {
		if strings.Contains(lower, "api key") {
			return &Error{Kind: KindInvalidAPIKey, Message: msgInvalidAPIKey, Cause: cause}
		}
		return &Error{Kind: KindAccessDenied, Message: msgAccessDenied, Cause: cause}
	}

	if containsAny(lower, "filereader", "read the file", "source data") {
		return &Error{Kind: KindFileRead, Message: withDetails(detailFileRead), Cause: cause}
	}

	if isNetworkError(cause) || containsAny(lower, "fetch failed", "network", "400", "invalid_argument", "503", "overloaded") {
		var details string
		switch {
		case containsAny(lower, "400", "invalid_argument"):
			details = detailBadRequest
		case containsAny(lower, "503", "overloaded"):
			details = detailOverloaded
		default:
			details = Truncate(msg, maxDetailLen)
		}
		return &Error{Kind: KindService, Message: withDetails(details), Cause: cause}
	}

	return &Error{Kind: KindGeneric, Message: msg, Cause: cause}
}

// Truncate cuts s to max characters and marks the cut with an ellipsis.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

func withDetails(details string) string {
	return msgServiceFailed + "\n\nDetails: " + details
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// isNetworkError reports transport-level failures that carry no keyword,
// e.g. "dial tcp: connection refused".
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
