package marker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bruecke-ai/bruecke/pkg/api"
)

// StoredItem is one persisted conversation item: the marker id it is filed
// under, its item kind, the producing model, and the raw item payload.
type StoredItem struct {
	ID      string
	Kind    string
	Model   string
	Payload json.RawMessage
}

// Store persists non-text items between conversation turns, keyed by chat
// id and marker id. Implementations must tolerate fetches for ids they have
// never seen: missing ids are simply absent from the result map.
type Store interface {
	// Persist stores the given items.
	Persist(ctx context.Context, chatID string, items []StoredItem) error

	// Fetch returns the payloads for the requested ids. When model is
	// non-empty only items recorded for that model are returned.
	Fetch(ctx context.Context, chatID string, ids []string, model string) (map[string]json.RawMessage, error)

	// Close releases the store's resources.
	Close()
}

// PersistItems stores the given items and returns the concatenation of
// their wrapped markers, ready to append to a transcript.
func PersistItems(ctx context.Context, store Store, chatID, model string, items []api.Item) (string, error) {
	if len(items) == 0 {
		return "", nil
	}
	stored := make([]StoredItem, 0, len(items))
	var markers []Marker
	for _, item := range items {
		payload, err := json.Marshal(item)
		if err != nil {
			return "", fmt.Errorf("encoding %s item: %w", item.Type, err)
		}
		id := api.NewMarkerID()
		stored = append(stored, StoredItem{
			ID:      id,
			Kind:    item.Type,
			Model:   model,
			Payload: payload,
		})
		markers = append(markers, New(item.Type, id).WithModel(model))
	}
	if err := store.Persist(ctx, chatID, stored); err != nil {
		return "", err
	}
	var out string
	for _, m := range markers {
		out += m.Wrapped()
	}
	return out, nil
}
