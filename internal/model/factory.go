package model

// Factory builds an idle item of one type bound to env.
type Factory func(env *Env, id string) Item

// Registration describes one item type: its type tag, its constructor and
// the load strata its instances attach. Item packages export their
// registrations and the catalog registers them at startup, before the
// stratum order is frozen.
type Registration struct {
	Type       string
	New        Factory
	LoadStrata []string
}

// LoadStrata collects the load strata of regs in order, without duplicates.
func LoadStrata(regs ...Registration) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range regs {
		for _, s := range r.LoadStrata {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}
