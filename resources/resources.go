package resources

import "sort"

// Kind tags the shape of a resource item's value.
type Kind int

const (
	Scalar Kind = iota
	Range
	Set
)

// Span is an inclusive integer range, used for port-style resources.
type Span struct {
	Begin uint64
	End   uint64
}

// Item is a single typed resource. The zero value is not meaningful;
// construct items with NewScalar/NewRange/NewSet.
type Item struct {
	Name string
	Kind Kind

	// Scalar payload.
	Amount    float64
	Divisible bool // false models a whole-or-nothing mount disk

	// Range/set payload.
	Spans  []Span
	Values []string

	// Reservations is the (possibly empty) ordered chain of roles this
	// item is reserved to, outermost ancestor first, e.g. ["a", "a/b"].
	// An empty chain means unreserved.
	Reservations []string

	// AllocationRole is the role this item is currently allocated/offered
	// under, set only once the allocator commits an offer to a framework
	// in that role. Empty when the item has no allocation tag.
	AllocationRole string

	Revocable bool
	Shared    bool
}

// NewScalar builds a divisible, unreserved scalar item.
func NewScalar(name string, amount float64) Item {
	return Item{Name: name, Kind: Scalar, Amount: amount, Divisible: true}
}

// NewIndivisibleScalar builds a whole-or-nothing scalar item (e.g. a mount disk).
func NewIndivisibleScalar(name string, amount float64) Item {
	return Item{Name: name, Kind: Scalar, Amount: amount, Divisible: false}
}

// NewRange builds a range item (e.g. ports).
func NewRange(name string, spans ...Span) Item {
	return Item{Name: name, Kind: Range, Spans: append([]Span(nil), spans...)}
}

// NewSet builds a set item.
func NewSet(name string, values ...string) Item {
	return Item{Name: name, Kind: Set, Values: append([]string(nil), values...)}
}

// ReservedTo returns a copy of the item reserved to the given chain.
func (it Item) ReservedTo(chain ...string) Item {
	it.Reservations = append([]string(nil), chain...)
	return it
}

// WithRevocable returns a copy tagged revocable.
func (it Item) WithRevocable() Item {
	it.Revocable = true
	return it
}

// WithShared returns a copy tagged shared.
func (it Item) WithShared() Item {
	it.Shared = true
	return it
}

// WithAllocationRole returns a copy tagged as allocated to role.
func (it Item) WithAllocationRole(role string) Item {
	it.AllocationRole = role
	return it
}

// reservedRole returns the innermost (most specific) role of the
// reservation chain, or "" if unreserved.
func (it Item) reservedRole() string {
	if len(it.Reservations) == 0 {
		return ""
	}
	return it.Reservations[len(it.Reservations)-1]
}

// key groups items that can be merged by addition: same name, kind,
// reservation chain, revocable/shared tags and allocation role.
type key struct {
	name           string
	kind           Kind
	divisible      bool
	reservations   string
	revocable      bool
	shared         bool
	allocationRole string
}

func (it Item) key() key {
	return key{
		name:           it.Name,
		kind:           it.Kind,
		divisible:      it.Divisible,
		reservations:   joinChain(it.Reservations),
		revocable:      it.Revocable,
		shared:         it.Shared,
		allocationRole: it.AllocationRole,
	}
}

func joinChain(chain []string) string {
	out := ""
	for i, r := range chain {
		if i > 0 {
			out += "/"
		}
		out += r
	}
	return out
}

// Resources is a multiset of Items forming a commutative monoid under
// addition with a partial subtraction (Sub succeeds only when the left
// side contains the right).
type Resources []Item

// Empty reports whether r has no items (items with a zero quantity are not
// automatically pruned by every operation, so this is a length check, not
// a quantity check; use IsEmpty for the quantity-aware version used by the
// allocation loop).
func (r Resources) Empty() bool {
	return len(r) == 0
}

// IsEmpty reports whether r carries no positive quantity: every scalar is
// <= 0, every range has no spans and every set has no values.
func (r Resources) IsEmpty() bool {
	for _, it := range r {
		switch it.Kind {
		case Scalar:
			if it.Amount > 0 {
				return false
			}
		case Range:
			if len(it.Spans) > 0 {
				return false
			}
		case Set:
			if len(it.Values) > 0 {
				return false
			}
		}
	}
	return true
}

// Clone returns a deep-enough independent copy (slices are re-allocated).
func (r Resources) Clone() Resources {
	out := make(Resources, len(r))
	for i, it := range r {
		it.Reservations = append([]string(nil), it.Reservations...)
		it.Spans = append([]Span(nil), it.Spans...)
		it.Values = append([]string(nil), it.Values...)
		out[i] = it
	}
	return out
}

func indexByKey(r Resources) map[key]int {
	idx := make(map[key]int, len(r))
	for i, it := range r {
		idx[it.key()] = i
	}
	return idx
}

// Add returns r + other, merging same-keyed items.
func (r Resources) Add(other Resources) Resources {
	out := r.Clone()
	idx := indexByKey(out)
	for _, it := range other {
		if i, ok := idx[it.key()]; ok {
			out[i] = mergeAdd(out[i], it)
		} else {
			idx[it.key()] = len(out)
			out = append(out, it.Clone1())
		}
	}
	return out
}

// Clone1 deep-copies a single item (exported for use by other packages
// composing items directly).
func (it Item) Clone1() Item {
	it.Reservations = append([]string(nil), it.Reservations...)
	it.Spans = append([]Span(nil), it.Spans...)
	it.Values = append([]string(nil), it.Values...)
	return it
}

func mergeAdd(a, b Item) Item {
	switch a.Kind {
	case Scalar:
		a.Amount += b.Amount
	case Range:
		a.Spans = mergeSpans(append(append([]Span(nil), a.Spans...), b.Spans...))
	case Set:
		seen := make(map[string]bool, len(a.Values))
		for _, v := range a.Values {
			seen[v] = true
		}
		for _, v := range b.Values {
			if !seen[v] {
				a.Values = append(a.Values, v)
				seen[v] = true
			}
		}
	}
	return a
}

func mergeSpans(spans []Span) []Span {
	if len(spans) == 0 {
		return spans
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Begin < spans[j].Begin })
	out := []Span{spans[0]}
	for _, s := range spans[1:] {
		last := &out[len(out)-1]
		if s.Begin <= last.End+1 {
			if s.End > last.End {
				last.End = s.End
			}
		} else {
			out = append(out, s)
		}
	}
	return out
}

// Sub returns (r - other, true) if r contains other (Contains), otherwise
// (r, false) and r is left unmodified.
func (r Resources) Sub(other Resources) (Resources, bool) {
	if !r.Contains(other) {
		return r, false
	}
	out := r.Clone()
	idx := indexByKey(out)
	for _, it := range other {
		i, ok := idx[it.key()]
		if !ok {
			return r, false
		}
		out[i] = subtractItem(out[i], it)
	}
	return compact(out), true
}

func subtractItem(a, b Item) Item {
	switch a.Kind {
	case Scalar:
		a.Amount -= b.Amount
	case Range:
		a.Spans = subtractSpans(a.Spans, b.Spans)
	case Set:
		rm := make(map[string]bool, len(b.Values))
		for _, v := range b.Values {
			rm[v] = true
		}
		kept := a.Values[:0:0]
		for _, v := range a.Values {
			if !rm[v] {
				kept = append(kept, v)
			}
		}
		a.Values = kept
	}
	return a
}

func subtractSpans(a, b []Span) []Span {
	out := append([]Span(nil), a...)
	for _, bs := range b {
		next := out[:0]
		for _, as := range out {
			if bs.End < as.Begin || bs.Begin > as.End {
				next = append(next, as)
				continue
			}
			if bs.Begin > as.Begin {
				next = append(next, Span{as.Begin, bs.Begin - 1})
			}
			if bs.End < as.End {
				next = append(next, Span{bs.End + 1, as.End})
			}
		}
		out = next
	}
	return out
}

// compact drops items that have become empty (zero scalar, no spans/values).
func compact(r Resources) Resources {
	out := r[:0:0]
	for _, it := range r {
		switch it.Kind {
		case Scalar:
			if it.Amount > 1e-9 {
				out = append(out, it)
			}
		case Range:
			if len(it.Spans) > 0 {
				out = append(out, it)
			}
		case Set:
			if len(it.Values) > 0 {
				out = append(out, it)
			}
		}
	}
	return out
}

// Contains reports whether r has, for every item of other, at least as
// much quantity under the same key.
func (r Resources) Contains(other Resources) bool {
	idx := indexByKey(r)
	for _, it := range other {
		i, ok := idx[it.key()]
		if !ok {
			if it.IsEmptyItem() {
				continue
			}
			return false
		}
		if !containsItem(r[i], it) {
			return false
		}
	}
	return true
}

// IsEmptyItem reports whether a single item carries zero quantity.
func (it Item) IsEmptyItem() bool {
	switch it.Kind {
	case Scalar:
		return it.Amount <= 0
	case Range:
		return len(it.Spans) == 0
	default:
		return len(it.Values) == 0
	}
}

func containsItem(a, b Item) bool {
	switch a.Kind {
	case Scalar:
		return a.Amount >= b.Amount
	case Range:
		for _, bs := range b.Spans {
			if !spansContain(a.Spans, bs) {
				return false
			}
		}
		return true
	default:
		have := make(map[string]bool, len(a.Values))
		for _, v := range a.Values {
			have[v] = true
		}
		for _, v := range b.Values {
			if !have[v] {
				return false
			}
		}
		return true
	}
}

func spansContain(spans []Span, s Span) bool {
	for _, a := range spans {
		if a.Begin <= s.Begin && s.End <= a.End {
			return true
		}
	}
	return false
}

// Filter returns the subset of items for which pred returns true.
func (r Resources) Filter(pred func(Item) bool) Resources {
	out := make(Resources, 0, len(r))
	for _, it := range r {
		if pred(it) {
			out = append(out, it)
		}
	}
	return out
}

// Unreserved returns items with no reservation chain.
func (r Resources) Unreserved() Resources {
	return r.Filter(func(it Item) bool { return len(it.Reservations) == 0 })
}

// ReservedExactly returns items reserved exactly to role (not ancestors).
func (r Resources) ReservedExactly(role string) Resources {
	return r.Filter(func(it Item) bool { return it.reservedRole() == role })
}

// AllocatableTo returns the subset of r that may be allocated into role:
// unreserved items, plus items reserved to role or any ancestor of role.
func (r Resources) AllocatableTo(role string) Resources {
	ancestors := append(Ancestors(role), role)
	ancestorSet := make(map[string]bool, len(ancestors))
	for _, a := range ancestors {
		ancestorSet[a] = true
	}
	return r.Filter(func(it Item) bool {
		if len(it.Reservations) == 0 {
			return true
		}
		return ancestorSet[it.reservedRole()]
	})
}

// NonRevocable returns items not tagged revocable.
func (r Resources) NonRevocable() Resources {
	return r.Filter(func(it Item) bool { return !it.Revocable })
}

// RevocableOnly returns items tagged revocable.
func (r Resources) RevocableOnly() Resources {
	return r.Filter(func(it Item) bool { return it.Revocable })
}

// SharedOnly returns items tagged shared.
func (r Resources) SharedOnly() Resources {
	return r.Filter(func(it Item) bool { return it.Shared })
}

// Scalars returns scalar-kind items only.
func (r Resources) Scalars() Resources {
	return r.Filter(func(it Item) bool { return it.Kind == Scalar })
}

// ReservationsOf returns items reserved to role or any descendant of role
// (used by the reservation aggregate, which rolls child contributions up
// to every ancestor).
func (r Resources) ReservationsOf(role string) Resources {
	return r.Filter(func(it Item) bool {
		rr := it.reservedRole()
		if rr == "" {
			return false
		}
		return rr == role || IsDescendant(rr, role)
	})
}

// WithoutAllocationRole returns a copy of r with every item's
// AllocationRole tag cleared, re-merging items that collide once the tag
// is gone (Mesos computes an agent's available resources by stripping
// AllocationInfo from its allocated set before subtracting it from total;
// see original_source/.../hierarchical.cpp around its `unallocated`
// helper).
func (r Resources) WithoutAllocationRole() Resources {
	out := Resources{}
	for _, it := range r {
		it.AllocationRole = ""
		out = out.Add(Resources{it})
	}
	return out
}

// CreateStrippedScalarQuantity projects r to a ResourceQuantities keyed
// only by name, discarding reservation/revocable/shared tags.
func (r Resources) CreateStrippedScalarQuantity() ResourceQuantities {
	q := make(ResourceQuantities)
	for _, it := range r {
		if it.Kind != Scalar || it.Amount <= 0 {
			continue
		}
		q[it.Name] += it.Amount
	}
	return q
}

// ShrinkToQuantities reduces the divisible scalar items of r so that no
// name exceeds the corresponding quantity in target; names absent from
// target are dropped entirely. Indivisible scalar items whose amount
// exceeds the target quantity are dropped (the spec's "caller discards
// it"); indivisible items within budget are kept whole. Non-scalar items
// are dropped (quota/headroom accounting, the only caller of this, is
// only ever defined over scalars).
func (r Resources) ShrinkToQuantities(target ResourceQuantities) Resources {
	remaining := target.Clone()
	out := make(Resources, 0, len(r))
	for _, it := range r {
		if it.Kind != Scalar {
			continue
		}
		budget := remaining.Get(it.Name)
		if budget <= 0 {
			continue
		}
		if !it.Divisible {
			if it.Amount <= budget {
				out = append(out, it)
				remaining[it.Name] = budget - it.Amount
			}
			continue
		}
		take := it.Amount
		if take > budget {
			take = budget
		}
		shrunk := it
		shrunk.Amount = take
		out = append(out, shrunk)
		remaining[it.Name] = budget - take
	}
	return out
}

// Ancestors returns the proper ancestors of a "/"-separated role,
// furthest-first and excluding role itself: for "a/b/c" it returns
// ["a", "a/b"].
func Ancestors(role string) []string {
	parts := splitRole(role)
	if len(parts) <= 1 {
		return nil
	}
	out := make([]string, 0, len(parts)-1)
	acc := parts[0]
	out = append(out, acc)
	for _, p := range parts[1 : len(parts)-1] {
		acc = acc + "/" + p
		out = append(out, acc)
	}
	return out
}

// IsDescendant reports whether role is child equal to or nested under
// ancestor ("a/b" is a descendant of "a"; "a" is a descendant of "a").
func IsDescendant(role, ancestor string) bool {
	if role == ancestor {
		return true
	}
	return len(role) > len(ancestor) && role[:len(ancestor)] == ancestor && role[len(ancestor)] == '/'
}

func splitRole(role string) []string {
	if role == "" {
		return nil
	}
	var parts []string
	start := 0
	for i := 0; i < len(role); i++ {
		if role[i] == '/' {
			parts = append(parts, role[start:i])
			start = i + 1
		}
	}
	parts = append(parts, role[start:])
	return parts
}
