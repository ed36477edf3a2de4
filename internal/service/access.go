package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/mesaflow/api/internal/database"
	"github.com/mesaflow/api/internal/enum"
)

var (
	ErrAccessDenied = errors.New("access denied")
	ErrInvalidRole  = errors.New("invalid staff role")
)

// AccessStore defines the DB methods needed for business access checks.
// Satisfied by *database.Queries.
type AccessStore interface {
	GetBusinessStaff(ctx context.Context, arg database.GetBusinessStaffParams) (database.BusinessStaff, error)
}

// BusinessAccess describes the caller's standing against one business.
type BusinessAccess struct {
	IsAdmin bool
	IsOwner bool
	IsStaff bool
	Roles   []string
}

// Allowed reports whether the caller may act on the business at all.
func (a BusinessAccess) Allowed() bool {
	return a.IsAdmin || a.IsOwner || a.IsStaff
}

// HasAnyRole reports whether the caller holds any of the given functional
// roles on the business. Owners and admins implicitly hold every role.
func (a BusinessAccess) HasAnyRole(roles ...string) bool {
	if a.IsAdmin || a.IsOwner {
		return true
	}
	for _, want := range roles {
		for _, have := range a.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// businessAccess resolves the caller's standing: admin, business owner, or
// active staff-roster member. Inactive roster entries carry no standing.
func businessAccess(ctx context.Context, store AccessStore, business database.Business, actor Actor) (BusinessAccess, error) {
	access := BusinessAccess{
		IsAdmin: actor.Role == enum.UserRoleAdmin,
		IsOwner: business.OwnerID == actor.ID,
	}

	staff, err := store.GetBusinessStaff(ctx, database.GetBusinessStaffParams{
		BusinessID: business.ID,
		UserID:     actor.ID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return access, nil
		}
		return BusinessAccess{}, fmt.Errorf("get business staff: %w", err)
	}
	if staff.IsActive {
		access.IsStaff = true
		access.Roles = staff.Roles
	}
	return access, nil
}

// ResolveBusinessAccess exposes the standing check to callers outside the
// service layer, mainly handlers gating read endpoints.
func ResolveBusinessAccess(ctx context.Context, store AccessStore, business database.Business, actor Actor) (BusinessAccess, error) {
	return businessAccess(ctx, store, business, actor)
}

// CleanAndValidateRoles trims, drops empties, and rejects anything outside
// the recognized staff-role set.
func CleanAndValidateRoles(roles []string) ([]string, error) {
	var cleaned []string
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		cleaned = append(cleaned, r)
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("%w: roles cannot be empty", ErrInvalidRole)
	}
	for _, r := range cleaned {
		if !isStaffRole(r) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidRole, r)
		}
	}
	return cleaned, nil
}

func isStaffRole(role string) bool {
	for _, r := range enum.StaffRoles {
		if r == role {
			return true
		}
	}
	return false
}
