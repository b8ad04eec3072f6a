package cli

import (
	"errors"
	"fmt"

	"github.com/mark3labs/ramlenhance/internal/enhancer"
	"github.com/mark3labs/ramlenhance/internal/source"
)

var ErrUsage = errors.New("cli usage error")

type usageError struct {
	msg string
}

func newUsageError(msg string) error {
	return usageError{msg: msg}
}

func (e usageError) Error() string {
	return e.msg
}

func (e usageError) Is(target error) bool {
	return target == ErrUsage
}

// friendlyError turns structured load and enhance errors into usage errors
// that point at the offending input. Other errors pass through.
func friendlyError(err error) error {
	var le *source.LoadError
	if errors.As(err, &le) {
		msg := fmt.Sprintf("input: %s", le.Message)
		if le.Location != "" {
			msg = fmt.Sprintf("%s\nLocation: %s", msg, le.Location)
		}
		if le.JSONPointer != "" {
			msg = fmt.Sprintf("%s\nPointer: %s", msg, le.JSONPointer)
		}
		return newUsageError(msg)
	}
	var ee *enhancer.Error
	if errors.As(err, &ee) {
		msg := fmt.Sprintf("enhance: %s", ee.Message)
		if ee.Path != "" {
			msg = fmt.Sprintf("%s\nPath: %s", msg, ee.Path)
		}
		return newUsageError(msg)
	}
	return err
}
