// Package rbac maps role names to permission sets. The mapping is data:
// it is loaded once at startup (from JSON or built-in defaults) and is
// read-only afterwards.
package rbac

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"sort"
)

// DefaultRole is assigned at registration when no role is requested.
const DefaultRole = "CLIENT"

var tagPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

type Role struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// Registry is immutable after construction and safe for concurrent use.
type Registry struct {
	roles map[string]map[string]struct{}
}

// New builds a registry from role → permissions. Names must be upper snake case.
func New(mapping map[string][]string) (*Registry, error) {
	if len(mapping) == 0 {
		return nil, errors.New("rbac: no roles defined")
	}

	r := &Registry{roles: make(map[string]map[string]struct{}, len(mapping))}
	for role, perms := range mapping {
		if !tagPattern.MatchString(role) {
			return nil, fmt.Errorf("rbac: invalid role name %q", role)
		}
		set := make(map[string]struct{}, len(perms))
		for _, p := range perms {
			if !tagPattern.MatchString(p) {
				return nil, fmt.Errorf("rbac: role %s: invalid permission %q", role, p)
			}
			set[p] = struct{}{}
		}
		r.roles[role] = set
	}
	return r, nil
}

// Load reads a JSON object of the form {"ROLE": ["PERM", ...]}.
func Load(rd io.Reader) (*Registry, error) {
	var mapping map[string][]string
	if err := json.NewDecoder(rd).Decode(&mapping); err != nil {
		return nil, fmt.Errorf("rbac: decode: %w", err)
	}
	return New(mapping)
}

// LoadFile loads path, or returns Default when path is empty.
func LoadFile(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func (r *Registry) Has(role string) bool {
	_, ok := r.roles[role]
	return ok
}

func (r *Registry) HasPermission(role, perm string) bool {
	_, ok := r.roles[role][perm]
	return ok
}

// Permissions returns the role's permissions sorted; nil for an unknown role.
func (r *Registry) Permissions(role string) []string {
	set, ok := r.roles[role]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Roles lists every role with its permissions, ordered by name.
func (r *Registry) Roles() []Role {
	out := make([]Role, 0, len(r.roles))
	for name := range r.roles {
		out = append(out, Role{Name: name, Permissions: r.Permissions(name)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
