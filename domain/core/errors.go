package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Numeric errors
	ErrInvalidDomain  = errors.New("argument outside function domain")
	ErrNonconvergence = errors.New("iteration budget exhausted before tolerance was met")

	// Selection input errors
	ErrEmptyInput     = errors.New("no arms supplied")
	ErrInvalidBias    = fmt.Errorf("%w: bias", ErrInvalidDomain)
	ErrInvalidRuntime = fmt.Errorf("%w: runtime", ErrInvalidDomain)

	// Roster errors
	ErrArmNotFound   = errors.New("arm not found")
	ErrDuplicateArm  = errors.New("duplicate arm name")
	ErrInvalidRoster = errors.New("invalid roster")
)

// Error constructors with context
func NewDomainError(name string, value float64) error {
	return fmt.Errorf("%w: %s=%v", ErrInvalidDomain, name, value)
}

func NewNonconvergenceError(op string, iterations int, estimate float64) error {
	return fmt.Errorf("%w: %s after %d iterations (estimate %v)", ErrNonconvergence, op, iterations, estimate)
}

func NewArmNotFoundError(name string) error {
	return fmt.Errorf("%w: %s", ErrArmNotFound, name)
}

func NewRosterError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRoster, reason)
}

// Error checking helpers
func IsDomainError(err error) bool {
	return errors.Is(err, ErrInvalidDomain)
}

func IsNonconvergence(err error) bool {
	return errors.Is(err, ErrNonconvergence)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrArmNotFound)
}

func IsRosterError(err error) bool {
	return errors.Is(err, ErrInvalidRoster) || errors.Is(err, ErrDuplicateArm)
}
