package store

import "context"

// Typed exposes a collection through a concrete record shape T. T must
// marshal to a JSON object with an "id" field.
type Typed[T any] struct {
	collection *Collection
}

func NewTyped[T any](collection *Collection) *Typed[T] {
	return &Typed[T]{collection: collection}
}

// All returns every record that decodes into T. Records that do not decode are
// skipped and logged.
func (t *Typed[T]) All(ctx context.Context) []T {
	records := t.collection.LoadAll(ctx)
	items := make([]T, 0, len(records))
	for _, record := range records {
		var item T
		if err := FromRecord(record, &item); err != nil {
			t.collection.store.logger.Warn("skipping malformed record", "collection", t.collection.name, "id", record.ID(), "error", err)
			continue
		}
		items = append(items, item)
	}
	return items
}

// Append stores item and returns it as stored, id included.
func (t *Typed[T]) Append(ctx context.Context, item T) (T, error) {
	var stored T
	record, err := ToRecord(item)
	if err != nil {
		return stored, err
	}
	saved, err := t.collection.AppendOne(ctx, record)
	if err != nil {
		return stored, err
	}
	err = FromRecord(saved, &stored)
	return stored, err
}
