package classfile

import (
	"errors"
	"fmt"
)

// MalformedClassError reports a class file that could not be parsed or
// re-encoded. Path is the archive entry, when known.
type MalformedClassError struct {
	Path string
	Err  error
}

func (e *MalformedClassError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("malformed class file: %v", e.Err)
	}
	return fmt.Sprintf("malformed class file %s: %v", e.Path, e.Err)
}

func (e *MalformedClassError) Unwrap() error { return e.Err }

func malformed(format string, args ...any) error {
	return &MalformedClassError{Err: fmt.Errorf(format, args...)}
}

// WithPath attaches an entry path to err. A MalformedClassError without a path
// gets the path filled in; any other error is wrapped into one.
func WithPath(path string, err error) error {
	if err == nil {
		return nil
	}
	var mce *MalformedClassError
	if errors.As(err, &mce) {
		if mce.Path == "" {
			return &MalformedClassError{Path: path, Err: mce.Err}
		}
		return err
	}
	return &MalformedClassError{Path: path, Err: err}
}
