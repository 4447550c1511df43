package dwn

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is matched by any reply with status 404.
	ErrNotFound = errors.New("dwn: record not found")

	// ErrUnauthorized is matched by replies with status 401 or 403.
	ErrUnauthorized = errors.New("dwn: unauthorized")
)

// Status is the reply status of a processed message.
type Status struct {
	Code   int    `json:"code"`
	Detail string `json:"detail,omitempty"`
}

// OK reports whether the node accepted the message.
func (s Status) OK() bool { return s.Code >= 200 && s.Code < 300 }

// StatusError is returned when the node rejects a message.
type StatusError struct {
	Method string
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	detail := e.Detail
	if detail == "" {
		detail = http.StatusText(e.Code)
	}
	return fmt.Sprintf("dwn: records %s: %d %s", e.Method, e.Code, detail)
}

// Is lets callers test a StatusError against ErrNotFound and ErrUnauthorized.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
	}
	return false
}

// RPCError is a JSON-RPC level failure (the message never reached the
// records handler).
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("dwn: json-rpc error %d: %s", e.Code, e.Message)
}
