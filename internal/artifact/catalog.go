package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// ErrBackwardMove is returned when a move would not advance a work item.
var ErrBackwardMove = errors.New("artifact: stage moves must advance")

// Move relocates a work item directory to a later stage and returns the item
// at its new stage. Artifacts move with the directory; nothing is rewritten.
func (s *FileStore) Move(r *Resolver, item WorkItem, to Stage) (WorkItem, error) {
	if !to.Valid() {
		return WorkItem{}, fmt.Errorf("artifact: unknown target stage %q", to)
	}
	if to.Index() <= item.Stage.Index() {
		return WorkItem{}, fmt.Errorf("%w: %s -> %s", ErrBackwardMove, item.Stage, to)
	}
	from := r.WorkItemDirectory(item.Feature, item.Stage, item.ID)
	dest := r.WorkItemDirectory(item.Feature, to, item.ID)
	if _, err := os.Stat(from); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return WorkItem{}, fmt.Errorf("%w: %s", ErrArtifactMissing, from)
		}
		return WorkItem{}, fmt.Errorf("artifact: stat %s: %w", from, err)
	}
	if _, err := os.Stat(dest); err == nil {
		return WorkItem{}, fmt.Errorf("artifact: %s already exists", dest)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return WorkItem{}, fmt.Errorf("artifact: stat %s: %w", dest, err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), s.dirMode); err != nil {
		return WorkItem{}, fmt.Errorf("artifact: ensure dir %s: %w", filepath.Dir(dest), err)
	}
	if err := os.Rename(from, dest); err != nil {
		return WorkItem{}, fmt.Errorf("artifact: move %s: %w", item.ID, err)
	}
	item.Stage = to
	return item, nil
}

// Catalog lists every work item directory under the plans root, ordered by
// feature, stage and id. Entries that do not fit the layout are ignored. A
// missing root yields an empty catalog.
func (s *FileStore) Catalog(r *Resolver) ([]WorkItem, error) {
	features, err := os.ReadDir(r.Root())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("artifact: read plans root: %w", err)
	}
	var items []WorkItem
	for _, feature := range features {
		if !feature.IsDir() {
			continue
		}
		stageDirs, err := os.ReadDir(filepath.Join(r.Root(), feature.Name()))
		if err != nil {
			return nil, fmt.Errorf("artifact: read feature %s: %w", feature.Name(), err)
		}
		for _, stageDir := range stageDirs {
			stage, ok := StageFromDirectory(stageDir.Name())
			if !stageDir.IsDir() || !ok {
				continue
			}
			entries, err := os.ReadDir(filepath.Join(r.Root(), feature.Name(), stageDir.Name()))
			if err != nil {
				return nil, fmt.Errorf("artifact: read stage %s: %w", stageDir.Name(), err)
			}
			for _, entry := range entries {
				if !entry.IsDir() || !IsValidID(entry.Name()) {
					continue
				}
				items = append(items, WorkItem{ID: entry.Name(), Feature: feature.Name(), Stage: stage})
			}
		}
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Feature != b.Feature {
			return a.Feature < b.Feature
		}
		if a.Stage != b.Stage {
			return a.Stage.Index() < b.Stage.Index()
		}
		return a.ID < b.ID
	})
	return items, nil
}
