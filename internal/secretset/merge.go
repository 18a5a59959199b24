package secretset

// MergePolicy decides how incoming entries reconcile with stored ones.
type MergePolicy int

const (
	// Merge overlays incoming entries onto the existing ones.
	Merge MergePolicy = iota
	// Replace discards existing entries in favour of incoming.
	Replace
)

func (p MergePolicy) String() string {
	if p == Replace {
		return "replace"
	}
	return "merge"
}

// Apply reconciles incoming against existing. Neither argument is
// modified. Under Merge the existing order is kept and new keys are
// appended in incoming order; under Replace the result is a copy of
// incoming. A nil existing set is treated as empty.
func Apply(existing, incoming *SecretSet, policy MergePolicy) *SecretSet {
	scope := incoming.ScopeID
	if existing != nil && scope == "" {
		scope = existing.ScopeID
	}

	if policy == Replace || existing == nil {
		out := incoming.Clone()
		out.ScopeID = scope
		return out
	}

	out := existing.Clone()
	out.ScopeID = scope
	incoming.Each(out.Set)
	return out
}

// Changes lists the keys that differ between two sets.
type Changes struct {
	Added   []string
	Changed []string
	Removed []string
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Changed) == 0 && len(c.Removed) == 0
}

// Diff compares old and new. Added and Changed follow the order of new,
// Removed follows the order of old.
func Diff(old, new *SecretSet) Changes {
	var c Changes
	new.Each(func(k, v string) {
		ov, ok := old.Get(k)
		switch {
		case !ok:
			c.Added = append(c.Added, k)
		case ov != v:
			c.Changed = append(c.Changed, k)
		}
	})
	old.Each(func(k, _ string) {
		if _, ok := new.Get(k); !ok {
			c.Removed = append(c.Removed, k)
		}
	})
	return c
}
