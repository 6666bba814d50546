// Package rbac performs capability checks at the HTTP boundary. The financial
// core never inspects permissions; it only records the actor it is given.
package rbac

import (
	"fmt"
	"strings"

	"github.com/coopledger/coopledger/internal/platform/httpx"
	"github.com/coopledger/coopledger/internal/shared"
)

// Check returns httpx.ErrForbidden unless granted covers every required permission.
func Check(granted []string, required ...string) error {
	missing := missingPermissions(granted, normalizePermissions(required))
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: missing %s", httpx.ErrForbidden, strings.Join(missing, ","))
}

// CheckAny returns httpx.ErrForbidden unless granted covers at least one required permission.
func CheckAny(granted []string, required ...string) error {
	if hasAnyPermission(granted, normalizePermissions(required)) {
		return nil
	}
	return fmt.Errorf("%w: requires one of %s", httpx.ErrForbidden, strings.Join(required, ","))
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		if _, ok := unique[p]; ok {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}

func grantSet(granted []string) (map[string]struct{}, bool) {
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == shared.PermSuperuser {
			return nil, true
		}
		set[p] = struct{}{}
	}
	return set, false
}

func hasAnyPermission(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set, super := grantSet(granted)
	if super {
		return true
	}
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

func missingPermissions(granted []string, required []string) []string {
	set, super := grantSet(granted)
	if super {
		return nil
	}
	var missing []string
	for _, r := range required {
		if _, ok := set[r]; !ok {
			missing = append(missing, r)
		}
	}
	return missing
}
