// Package permission answers whether the location capabilities tracking
// depends on are currently granted.
package permission

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Capability names one permission the user can grant or revoke
type Capability string

// Capabilities checked before location updates are requested.
const (
	FineLocation       Capability = "fine_location"
	CoarseLocation     Capability = "coarse_location"
	BackgroundLocation Capability = "background_location"
)

// Required lists the capabilities tracking needs, in the order they are checked
var Required = []Capability{FineLocation, CoarseLocation, BackgroundLocation}

// Oracle answers capability checks synchronously
type Oracle interface {
	HasCapability(c Capability) bool
}

// Grants is an in-memory Oracle whose grants can change at runtime
type Grants struct {
	mu      sync.RWMutex
	granted map[Capability]bool
}

// NewGrants creates a grant table with the given capabilities granted
func NewGrants(granted ...Capability) *Grants {
	g := &Grants{
		granted: make(map[Capability]bool),
	}
	for _, c := range granted {
		g.granted[c] = true
	}
	return g
}

// HasCapability implements Oracle
func (g *Grants) HasCapability(c Capability) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.granted[c]
}

// Grant marks c as granted
func (g *Grants) Grant(c Capability) {
	g.set(c, true)
}

// Revoke marks c as not granted
func (g *Grants) Revoke(c Capability) {
	g.set(c, false)
}

// Set replaces the whole grant table
func (g *Grants) Set(granted []Capability) {
	next := make(map[Capability]bool, len(granted))
	for _, c := range granted {
		next[c] = true
	}

	g.mu.Lock()
	g.granted = next
	g.mu.Unlock()
}

func (g *Grants) set(c Capability, granted bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if granted {
		g.granted[c] = true
	} else {
		delete(g.granted, c)
	}
}

// Snapshot returns the granted capabilities sorted by name
func (g *Grants) Snapshot() []Capability {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Capability, 0, len(g.granted))
	for c := range g.granted {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Missing returns the required capabilities oracle does not grant
func Missing(oracle Oracle) []Capability {
	var missing []Capability
	for _, c := range Required {
		if !oracle.HasCapability(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

// ParseCapabilities parses a comma separated list such as
// "fine_location,coarse_location". "all" grants every required capability.
func ParseCapabilities(list string) ([]Capability, error) {
	var out []Capability
	for _, part := range strings.Split(list, ",") {
		name := strings.TrimSpace(strings.ToLower(part))
		if name == "" {
			continue
		}
		if name == "all" {
			out = append(out, Required...)
			continue
		}
		c := Capability(name)
		if !c.Known() {
			return nil, fmt.Errorf("unknown capability %q", name)
		}
		out = append(out, c)
	}
	return out, nil
}

// Known reports whether c is one of the required capabilities
func (c Capability) Known() bool {
	for _, r := range Required {
		if c == r {
			return true
		}
	}
	return false
}
