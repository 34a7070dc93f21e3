package qerrors

import (
	"bytes"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/giuseppesec/gqlmap/text"
	"github.com/pkg/errors"
)

/////////////////////////////////////////////////////////////////////////////
// Section: Error
/////////////////////////////////////////////////////////////////////////////

// Error is a GraphQL wire-level error as servers return it in the "errors"
// array. Probing leans on the Message text and the optional Extensions map;
// everything else is carried along for reporting.
type Error struct {
	Message    string                 `json:"message"`
	Locations  []Location             `json:"locations,omitempty"`
	Path       []interface{}          `json:"path,omitempty"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
	cause      error
	stack      errors.StackTrace
}

// asserts that *Error implements the error interface.
var _ error = &Error{}

func New(message string, a ...interface{}) *Error {
	return (&Error{
		Message: fmt.Sprintf(message, a...),
	}).WithStack()
}

func WrapError(err error, message string) *Error {
	return &Error{
		Message: message,
		cause:   err,
	}
}

func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

func (e *Error) WithPath(path ...interface{}) *Error {
	e.Path = path
	return e
}

func (e *Error) WithLocations(locations ...Location) *Error {
	e.Locations = locations
	return e
}

func (err *Error) WithStack() *Error {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	f := make([]errors.Frame, n)
	for i := 0; i < n; i++ {
		f[i] = errors.Frame(pcs[i])
	}

	err.stack = f
	return err
}

func (err *Error) Error() string {
	str := "graphql: " + err.Message
	if len(err.Path) > 0 {
		parts := make([]string, len(err.Path))
		for i, p := range err.Path {
			parts[i] = fmt.Sprint(p)
		}
		str += fmt.Sprintf(" (path %s)", strings.Join(parts, "/"))
	}
	return str
}

func (err *Error) Cause() error {
	return err.cause
}

type state struct {
	fmt.State
	buf bytes.Buffer
}

func (s *state) Write(b []byte) (n int, err error) {
	return s.buf.Write(b)
}

func (w *Error) Format(s fmt.State, verb rune) {
	type stackTracer interface {
		StackTrace() errors.StackTrace
	}

	switch verb {
	case 'v':
		io.WriteString(s, w.Error())
		if s.Flag('+') {
			stack := w.stack
			if w.cause != nil {
				if cause, ok := w.cause.(stackTracer); ok {
					stack = cause.StackTrace()
				}
			}
			if stack != nil {
				tempState := &state{State: s}
				stack.Format(tempState, verb)
				stackText := tempState.buf.String()
				io.WriteString(s, "\n"+text.BulletIndent(" stack: ", stackText[1:]))
				io.WriteString(s, "\n")
			}
			return
		}
		fallthrough
	case 's':
		io.WriteString(s, w.Error())
	case 'q':
		fmt.Fprintf(s, "%q", w.Error())
	}
}

/////////////////////////////////////////////////////////////////////////////
// Section: Location
/////////////////////////////////////////////////////////////////////////////

type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

func (l Location) String() string {
	return fmt.Sprintf("(line %d, column %d)", l.Line, l.Column)
}

/////////////////////////////////////////////////////////////////////////////
// Section: ErrorList
/////////////////////////////////////////////////////////////////////////////

type ErrorList []*Error

func AppendErrors(items ErrorList, values ...error) ErrorList {
	for _, err := range values {
		if err == nil {
			continue
		}
		switch err := err.(type) {
		case *Error:
			items = append(items, err)
		case asError:
			for _, e := range err {
				items = AppendErrors(items, e)
			}
		default:
			items = append(items, WrapError(err, err.Error()))
		}
	}
	return items
}

// Messages returns the raw message text of every error in the list, in order.
// This is the surface the response classifier pattern-matches against.
func (items ErrorList) Messages() []string {
	messages := make([]string, len(items))
	for i, err := range items {
		messages[i] = err.Message
	}
	return messages
}

func (items ErrorList) Error() error {
	if len(items) == 0 {
		return nil
	}
	return asError(items)
}

/////////////////////////////////////////////////////////////////////////////
// Section: asError
/////////////////////////////////////////////////////////////////////////////

type asError ErrorList

var _ error = asError{}

func (es asError) Error() string {
	points := make([]string, len(es))
	for i, err := range es {
		points[i] = text.BulletIndent(" * ", err.Error())
	}
	return fmt.Sprintf(
		"%d errors occurred:\n\t%s\n\n",
		len(es), strings.Join(points, "\n\t"))
}
