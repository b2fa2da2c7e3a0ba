// Package scope defines soft-delete query scoping modes.
//
// Deletes never remove rows; scopes decide which rows a read sees.
// ActiveOnly is the implicit default. DeletedOnly and All are reserved
// for elevated-access code paths.
package scope

// Mode selects which rows a query observes with respect to soft delete.
type Mode string

const (
	// ActiveOnly restricts to active = true. Default.
	ActiveOnly Mode = "active_only"

	// DeletedOnly restricts to active = false.
	DeletedOnly Mode = "deleted_only"

	// All applies no soft-delete predicate.
	All Mode = "all"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ActiveOnly, DeletedOnly, All:
		return true
	}
	return false
}

// Elevated reports whether the mode exposes soft-deleted rows and
// therefore requires an administrative caller.
func (m Mode) Elevated() bool {
	return m == DeletedOnly || m == All
}

// Normalize maps the zero value to ActiveOnly so callers can leave the
// mode unset.
func (m Mode) Normalize() Mode {
	if m == "" {
		return ActiveOnly
	}
	return m
}
