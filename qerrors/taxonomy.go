package qerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// The scanner-side error taxonomy. Wire-level GraphQL errors are data (see
// Error above); the types here describe how a probe or a run itself failed.

// ErrBudgetExhausted signals that the probe or wall-clock budget ran out.
// It is a normal termination reason: whoever sees it still gets the partial
// schema model accumulated so far.
var ErrBudgetExhausted = errors.New("probe budget exhausted")

// TransportError is a connection-level fault: DNS failure, connection
// refused, timeout. These are retried by the inference engine, never by the
// executor itself.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

func Transport(err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Err: err}
}

func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// ProtocolError is a response whose shape could not be interpreted as a
// GraphQL response at all (non-JSON body, unexpected structure). Hypotheses
// hitting it are classified ambiguous, not rejected.
type ProtocolError struct {
	Detail string
}

func (e *ProtocolError) Error() string { return "protocol: " + e.Detail }

func Protocol(format string, a ...interface{}) error {
	return &ProtocolError{Detail: fmt.Sprintf(format, a...)}
}

func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// ConflictError records contradictory schema evidence. It never aborts a
// run; the model keeps the stricter interpretation at lowered confidence and
// remembers the conflict.
type ConflictError struct {
	TypeName string
	Detail   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting evidence for type %s: %s", e.TypeName, e.Detail)
}

func Conflict(typeName, format string, a ...interface{}) *ConflictError {
	return &ConflictError{TypeName: typeName, Detail: fmt.Sprintf(format, a...)}
}

// FatalConfigError aborts before any probing starts: invalid target URL,
// unreachable proxy, unreadable wordlist.
type FatalConfigError struct {
	Err error
}

func (e *FatalConfigError) Error() string { return "config: " + e.Err.Error() }
func (e *FatalConfigError) Unwrap() error { return e.Err }

func FatalConfig(err error, message string) error {
	if err == nil {
		return nil
	}
	return &FatalConfigError{Err: errors.Wrap(err, message)}
}

func IsFatalConfig(err error) bool {
	var fe *FatalConfigError
	return errors.As(err, &fe)
}
