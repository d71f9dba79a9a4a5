package geometry

import (
	"errors"
	"fmt"
)

// ErrDomain matches every *DomainError via errors.Is.
var ErrDomain = errors.New("geometry domain error")

// ErrInvalidGeometry is returned when a geometry payload cannot describe a shape.
var ErrInvalidGeometry = errors.New("invalid geometry")

// DomainError is returned by arithmetic that is undefined for its input.
type DomainError struct {
	Op  string
	Msg string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *DomainError) Is(target error) bool {
	return target == ErrDomain
}
