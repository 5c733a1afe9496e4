// Package catalog holds the registered set of permission identifiers.
// The catalog is seeded once at startup and is immutable afterwards;
// adding new permission types is an out-of-band administrative change.
package catalog

import (
	"fmt"
	"sort"
)

// Catalog is the read-only permission registry consulted by the role
// store during validation. It exposes no mutation on the authorization
// path.
type Catalog struct {
	byID  map[ID]Permission
	order []ID
}

// New builds a catalog from the given permissions. Duplicate ids are
// rejected so a bad seed fails fast at startup.
func New(perms []Permission) (*Catalog, error) {
	c := &Catalog{byID: make(map[ID]Permission, len(perms))}
	for _, p := range perms {
		if p.ID == "" {
			return nil, fmt.Errorf("catalog: permission with empty id")
		}
		if _, exists := c.byID[p.ID]; exists {
			return nil, fmt.Errorf("catalog: duplicate permission %q", p.ID)
		}
		c.byID[p.ID] = p
		c.order = append(c.order, p.ID)
	}
	return c, nil
}

// Exists reports whether the permission id is registered.
func (c *Catalog) Exists(id ID) bool {
	_, ok := c.byID[id]
	return ok
}

// GetByID returns the permission for the id.
func (c *Catalog) GetByID(id ID) (Permission, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// GetAll returns every registered permission in seed order.
func (c *Catalog) GetAll() []Permission {
	out := make([]Permission, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// Missing returns the subset of ids not present in the catalog, sorted
// for stable error messages. Validation errors must enumerate every
// offending id, not just the first.
func (c *Catalog) Missing(ids []ID) []ID {
	var missing []ID
	seen := make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if !c.Exists(id) {
			missing = append(missing, id)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}
