package engine

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/storyline/internal/artifact"
)

// ErrNoOutcome is returned when no run has been recorded for a work item yet.
var ErrNoOutcome = errors.New("workflow engine: no outcome recorded")

// StateStore persists run state snapshots.
type StateStore interface {
	Load(item artifact.WorkItem) (State, error)
	Save(State) error
}

// Repository stores run state as the work item's outcome artifact.
type Repository struct {
	store    artifact.Store
	resolver *artifact.Resolver
}

// NewRepository creates a repository writing through store at the locations
// resolver computes.
func NewRepository(store artifact.Store, resolver *artifact.Resolver) *Repository {
	return &Repository{store: store, resolver: resolver}
}

// Path returns where the outcome of item lives.
func (r *Repository) Path(item artifact.WorkItem) string {
	return r.resolver.ResolveItem(item, artifact.KindOutcome).AbsolutePath
}

// Load reads the persisted state if present.
func (r *Repository) Load(item artifact.WorkItem) (State, error) {
	data, err := r.store.ReadArtifact(r.Path(item))
	if err != nil {
		if errors.Is(err, artifact.ErrArtifactMissing) {
			return State{}, ErrNoOutcome
		}
		return State{}, err
	}
	var state State
	if err := yaml.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("workflow engine: decode outcome: %w", err)
	}
	return state, nil
}

// Save writes the state to the outcome artifact of state.Item.
func (r *Repository) Save(state State) error {
	encoded, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("workflow engine: encode outcome: %w", err)
	}
	if err := r.store.WriteArtifact(r.Path(state.Item), encoded); err != nil {
		return fmt.Errorf("workflow engine: save outcome: %w", err)
	}
	return nil
}
