// Package resources implements the allocator's opaque resource algebra: a
// commutative monoid of typed resource items (Resources) and a simpler
// name->scalar projection of it (ResourceQuantities) used by quota and
// headroom accounting.
package resources

// ResourceQuantities is a mapping of resource name to a non-negative
// scalar amount. A name mapped to zero is considered absent: Get, Contains
// and iteration never observe it.
type ResourceQuantities map[string]float64

// NewQuantities builds a ResourceQuantities from name/value pairs, dropping
// non-positive entries.
func NewQuantities(values map[string]float64) ResourceQuantities {
	q := make(ResourceQuantities, len(values))
	for name, v := range values {
		if v > 0 {
			q[name] = v
		}
	}
	return q
}

// Get returns the quantity for name, or 0 if absent.
func (q ResourceQuantities) Get(name string) float64 {
	if q == nil {
		return 0
	}
	return q[name]
}

// Clone returns an independent copy.
func (q ResourceQuantities) Clone() ResourceQuantities {
	out := make(ResourceQuantities, len(q))
	for k, v := range q {
		out[k] = v
	}
	return out
}

// Add returns q + other, a new ResourceQuantities.
func (q ResourceQuantities) Add(other ResourceQuantities) ResourceQuantities {
	out := q.Clone()
	for name, v := range other {
		if v <= 0 {
			continue
		}
		out[name] += v
	}
	return out
}

// Sub returns a saturating subtraction: every key's value is clamped to
// zero rather than going negative, and zero-valued keys are dropped.
func (q ResourceQuantities) Sub(other ResourceQuantities) ResourceQuantities {
	out := make(ResourceQuantities, len(q))
	for name, v := range q {
		rem := v - other.Get(name)
		if rem > 0 {
			out[name] = rem
		}
	}
	return out
}

// Contains reports whether q has, for every key of other, at least that
// much quantity.
func (q ResourceQuantities) Contains(other ResourceQuantities) bool {
	for name, v := range other {
		if q.Get(name) < v {
			return false
		}
	}
	return true
}

// IsZero reports whether every (implicit) entry is absent or non-positive.
func (q ResourceQuantities) IsZero() bool {
	for _, v := range q {
		if v > 0 {
			return false
		}
	}
	return true
}

// Names returns the set of names with a positive quantity.
func (q ResourceQuantities) Names() []string {
	names := make([]string, 0, len(q))
	for name, v := range q {
		if v > 0 {
			names = append(names, name)
		}
	}
	return names
}

// Max returns the element-wise maximum of q and other.
func (q ResourceQuantities) Max(other ResourceQuantities) ResourceQuantities {
	out := q.Clone()
	for name, v := range other {
		if v > out[name] {
			out[name] = v
		}
	}
	return out
}

// Min returns the element-wise minimum; a name absent from either operand
// is absent from the result.
func (q ResourceQuantities) Min(other ResourceQuantities) ResourceQuantities {
	out := make(ResourceQuantities, len(q))
	for name, v := range q {
		ov := other.Get(name)
		if ov < v {
			v = ov
		}
		if v > 0 {
			out[name] = v
		}
	}
	return out
}
