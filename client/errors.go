package client

import (
	"errors"
	"fmt"
)

// Error types attached to session state so the UI can place the message.
const (
	TypeParse   = "parse"
	TypeEval    = "eval"
	TypeNetwork = "network"
)

// NoResponseMessage is shown for transport-level failures.
const NoResponseMessage = "no response"

// BuildFailure is returned when the compiler rejects an expression. Message
// is the server's text, verbatim.
type BuildFailure struct {
	Message string
	Type    string
}

func (e *BuildFailure) Error() string {
	return "client: build failed: " + e.Message
}

// EvalFailure is returned when a valid expression fails to execute.
type EvalFailure struct {
	Message string
	Type    string
}

func (e *EvalFailure) Error() string {
	return "client: eval failed: " + e.Message
}

// NoResponse wraps transport errors and non-2xx replies without an error body.
type NoResponse struct {
	Err error
}

func (e *NoResponse) Error() string {
	return fmt.Sprintf("client: %s: %v", NoResponseMessage, e.Err)
}

func (e *NoResponse) Unwrap() error { return e.Err }

// Classify maps an error from this package to the message and error type a
// session surfaces. Unknown errors are treated as evaluation errors.
func Classify(err error) (message, errorType string) {
	if err == nil {
		return "", ""
	}
	var bf *BuildFailure
	if errors.As(err, &bf) {
		return bf.Message, orDefault(bf.Type, TypeParse)
	}
	var ef *EvalFailure
	if errors.As(err, &ef) {
		return ef.Message, orDefault(ef.Type, TypeEval)
	}
	var nr *NoResponse
	if errors.As(err, &nr) {
		return NoResponseMessage, TypeNetwork
	}
	return err.Error(), TypeEval
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
