package record

import (
	"fmt"
	"strings"
)

// SourceNotFoundError is returned when the master record location cannot be read.
type SourceNotFoundError struct {
	Location string
	Err      error
}

func (e *SourceNotFoundError) Error() (msg string) {
	msg = fmt.Sprintf("master record not found: %s", e.Location)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SourceNotFoundError) Unwrap() (err error) {
	err = e.Err
	return err
}

// SourceFormatError is returned when the master record cannot be parsed into the expected shape.
type SourceFormatError struct {
	Location string
	Problems []string
	Err      error
}

func (e *SourceFormatError) Error() (msg string) {
	msg = fmt.Sprintf("invalid master record: %s", e.Location)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if len(e.Problems) > 0 {
		msg += "\n    - " + strings.Join(e.Problems, "\n    - ")
	}
	return msg
}

func (e *SourceFormatError) Unwrap() (err error) {
	err = e.Err
	return err
}
