// Package tenant carries the scoping handle every circulation call requires.
package tenant

import (
	"errors"
	"strings"
)

var ErrEmptyTenant = errors.New("tenant id is required")

// Scope identifies the school a request acts on. The zero value is not a
// valid scope; build one with New.
type Scope struct {
	id string
}

func New(id string) (Scope, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Scope{}, ErrEmptyTenant
	}
	return Scope{id: id}, nil
}

// MustNew is New for ids that are known to be valid (tests, sweeps over stored rows).
func MustNew(id string) Scope {
	s, err := New(id)
	if err != nil {
		panic(err)
	}
	return s
}

func (s Scope) ID() string     { return s.id }
func (s Scope) Valid() bool    { return s.id != "" }
func (s Scope) String() string { return s.id }

// Owns reports whether a record tagged with tenantID belongs to this scope.
func (s Scope) Owns(tenantID string) bool { return s.Valid() && s.id == tenantID }
