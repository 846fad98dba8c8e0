package addon

// Filter selects addons by id and status.
type Filter func(id ID, status Status) bool

// All accepts every addon.
func All() Filter {
	return func(ID, Status) bool { return true }
}

// StatusFilter accepts addons in any of the given statuses.
func StatusFilter(statuses ...Status) Filter {
	return func(_ ID, status Status) bool {
		for _, s := range statuses {
			if s == status {
				return true
			}
		}
		return false
	}
}

// NameFilter accepts addons with the given name.
func NameFilter(name string) Filter {
	return func(id ID, _ Status) bool { return id.Name == name }
}

// Match reports whether every filter accepts the addon.
func Match(id ID, status Status, filters ...Filter) bool {
	for _, f := range filters {
		if f != nil && !f(id, status) {
			return false
		}
	}
	return true
}
