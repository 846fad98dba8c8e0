package addon

// Repository is a read-only source of installed addons.
type Repository interface {
	// Name identifies the repository within a container.
	Name() string
	// ListEnabled returns the ids marked enabled.
	ListEnabled() ([]ID, error)
	// IsDeployed reports whether the addon's descriptor and resources exist.
	IsDeployed(id ID) bool
	// Dependencies returns the declared dependencies of a deployed addon.
	Dependencies(id ID) ([]DependencyEntry, error)
	// Resources returns the resource paths of a deployed addon.
	Resources(id ID) ([]string, error)
	// Version is a counter that increases on every change.
	Version() int64
}

// MutableRepository accepts deployments.
type MutableRepository interface {
	Repository
	Deploy(id ID, deps []DependencyEntry, resources []string) error
	Undeploy(id ID) error
	Enable(id ID) error
	Disable(id ID) error
}

// DirtyChecker reports whether a repository changed since the last reset.
type DirtyChecker interface {
	IsDirty() bool
	ResetDirtyStatus()
}
