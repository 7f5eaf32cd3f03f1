package scope

import (
	"fmt"

	"github.com/kingrea/storyline/internal/artifact"
	"github.com/kingrea/storyline/internal/execerr"
)

// Load reads and validates the scope artifact of item.
func Load(store artifact.Store, r *artifact.Resolver, item artifact.WorkItem) (Document, error) {
	path := r.ResolveItem(item, artifact.KindScope).AbsolutePath
	data, err := store.ReadArtifact(path)
	if err != nil {
		return Document{}, err
	}
	doc, err := Parse(data)
	if err != nil {
		return Document{}, fmt.Errorf("scope: load %s: %w", path, err)
	}
	return doc, nil
}

// Save validates doc and writes it as the scope artifact of item. The
// document must belong to item.
func Save(store artifact.Store, r *artifact.Resolver, item artifact.WorkItem, doc Document) (string, error) {
	if doc.StoryID != item.ID {
		return "", execerr.Validation("story_id", fmt.Sprintf("document is for %q, not %q", doc.StoryID, item.ID))
	}
	data, err := Marshal(doc)
	if err != nil {
		return "", err
	}
	path := r.ResolveItem(item, artifact.KindScope).AbsolutePath
	if err := store.WriteArtifact(path, data); err != nil {
		return "", fmt.Errorf("scope: save %s: %w", path, err)
	}
	return path, nil
}
