package service

import (
	"shelfsync/internal/core/domain/models"
	"shelfsync/internal/core/domain/tree"
)

// BuildUsedKeys collects the catalog keys already present in the actor's
// collection. Records without a key at value.item.value are left out rather
// than collapsed into a shared empty marker.
func BuildUsedKeys(records []models.Record) models.KeySet {
	used := models.NewKeySet()
	for _, rec := range records {
		if key, ok := tree.String(rec.Value, "item", "value"); ok && key != "" {
			used.Add(key)
		}
	}
	return used
}
