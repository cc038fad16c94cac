package memora

import (
	"sort"
	"sync"
)

// UpdateMode selects how a category agent persists its output.
type UpdateMode int

const (
	// UpdateReplace overwrites the artifact with the LLM's full revised state.
	UpdateReplace UpdateMode = iota
	// UpdateAppend appends the LLM's output; used by chronological
	// categories (event, important_event).
	UpdateAppend
)

// CategoryConfig describes one memory category.
type CategoryConfig struct {
	// Name is the unique, identifier-safe category name.
	Name string
	// Filename is the stable storage key within a memory space (e.g. "profile.md").
	Filename string
	// Description is human text shown in tool schemas and prompts.
	Description string
	// Dependencies lists category names that must run before this one.
	Dependencies []string
	// Priority orders categories not constrained by dependencies; higher
	// runs earlier.
	Priority int
	// PromptTemplate names the template in the PromptStore.
	PromptTemplate string
	// UpdateMode selects replace vs. append persistence.
	UpdateMode UpdateMode
	// IsRoot marks the agent that consumes the raw conversation.
	IsRoot bool
}

// Registry is the source of truth for the set of categories and their
// metadata. Registration order breaks priority ties. Safe for concurrent
// use after construction; Register takes a write lock.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]CategoryConfig
	order   []string // registration order
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{configs: make(map[string]CategoryConfig)}
}

// DefaultRegistry returns a registry pre-loaded with the seven standard
// categories: activity (root), profile, event, reminder, interests, study,
// important_event.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, c := range DefaultCategories() {
		// Defaults are statically valid; Register cannot fail here.
		_ = r.Register(c)
	}
	return r
}

// defaultCategoryNames fixes the registration order of the standard set;
// priority ties resolve by this order.
var defaultCategoryNames = []string{
	"activity", "profile", "event", "reminder", "interests", "study", "important_event",
}

// DefaultCategories returns the standard category set in registration
// order. Metadata comes from the embedded config file beside each
// category's prompt template; a malformed embedded file is a build defect
// and panics.
func DefaultCategories() []CategoryConfig {
	out := make([]CategoryConfig, 0, len(defaultCategoryNames))
	for _, name := range defaultCategoryNames {
		data, err := defaultPrompts.ReadFile("prompts/" + name + "/config")
		if err != nil {
			panic("memora: missing embedded category config for " + name)
		}
		c, err := parseCategoryMeta(name, data)
		if err != nil {
			panic("memora: " + err.Error())
		}
		out = append(out, c)
	}
	return out
}

// Register validates and adds a category. It fails with *ErrCategoryConfig
// on an empty or duplicate name, a self-dependency, or a dependency on an
// unregistered category, and with *ErrCycleDetected if adding the category
// would make the dependency graph cyclic.
func (r *Registry) Register(c CategoryConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.Name == "" {
		return &ErrCategoryConfig{Category: c.Name, Reason: "empty name"}
	}
	if _, dup := r.configs[c.Name]; dup {
		return &ErrCategoryConfig{Category: c.Name, Reason: "already registered"}
	}
	if c.Filename == "" {
		c.Filename = c.Name + ".md"
	}
	for _, dep := range c.Dependencies {
		if dep == c.Name {
			return &ErrCategoryConfig{Category: c.Name, Reason: "depends on itself"}
		}
		if _, ok := r.configs[dep]; !ok {
			return &ErrCategoryConfig{Category: c.Name, Reason: "missing dependency " + dep}
		}
	}

	r.configs[c.Name] = c
	r.order = append(r.order, c.Name)

	// Dependencies can only reference already-registered categories, so a
	// new node cannot close a cycle — but custom registrations may later be
	// mutated through re-registration paths; verify the invariant anyway.
	if _, err := r.dependencyOrderLocked(); err != nil {
		delete(r.configs, c.Name)
		r.order = r.order[:len(r.order)-1]
		return err
	}
	return nil
}

// Get returns the config for a category, or *ErrUnknownCategory.
func (r *Registry) Get(name string) (CategoryConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.configs[name]
	if !ok {
		return CategoryConfig{}, &ErrUnknownCategory{Category: name}
	}
	return c, nil
}

// Names returns all registered category names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// List returns all configs sorted by priority descending, with ties broken
// by registration order.
func (r *Registry) List() []CategoryConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]CategoryConfig, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.configs[name])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

// DependencyOrder returns a topological order of category names over the
// dependency DAG. Among categories whose dependencies are satisfied,
// higher priority emits first; equal priorities break by registration
// order. Fails with *ErrCycleDetected if the graph is not a DAG.
func (r *Registry) DependencyOrder() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dependencyOrderLocked()
}

func (r *Registry) dependencyOrderLocked() ([]string, error) {
	indegree := make(map[string]int, len(r.configs))
	dependents := make(map[string][]string, len(r.configs))
	for _, name := range r.order {
		c := r.configs[name]
		indegree[name] = len(c.Dependencies)
		for _, dep := range c.Dependencies {
			dependents[dep] = append(dependents[dep], name)
		}
	}

	// regIndex resolves ties deterministically.
	regIndex := make(map[string]int, len(r.order))
	for i, name := range r.order {
		regIndex[name] = i
	}

	var ready []string
	for _, name := range r.order {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	var out []string
	for len(ready) > 0 {
		sort.SliceStable(ready, func(i, j int) bool {
			pi, pj := r.configs[ready[i]].Priority, r.configs[ready[j]].Priority
			if pi != pj {
				return pi > pj
			}
			return regIndex[ready[i]] < regIndex[ready[j]]
		})
		next := ready[0]
		ready = ready[1:]
		out = append(out, next)
		for _, dep := range dependents[next] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(out) != len(r.order) {
		var remaining []string
		for _, name := range r.order {
			if indegree[name] > 0 {
				remaining = append(remaining, name)
			}
		}
		return nil, &ErrCycleDetected{Remaining: remaining}
	}
	return out, nil
}
