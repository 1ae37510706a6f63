package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// RunID tags one scheduler invocation (a `run` or a served request) in logs and results.
type RunID ID

func (id RunID) String() string { return ID(id).String() }

// NewRunID returns a fresh time-ordered run identifier.
func NewRunID() RunID {
	return RunID(NewID())
}

// ParseRunID parses a string into RunID
func ParseRunID(s string) (RunID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("run ID cannot be empty")
	}
	return RunID(s), nil
}

// ArmName is the roster-unique name of a script.
type ArmName string

func (n ArmName) String() string { return string(n) }

// ParseArmName trims and validates an arm name.
func ParseArmName(s string) (ArmName, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("arm name cannot be empty")
	}
	if strings.ContainsAny(s, "=\n") {
		return "", fmt.Errorf("arm name %q cannot contain '=' or newlines", s)
	}
	return ArmName(s), nil
}
