package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Collection is one named, ordered sequence of records.
type Collection struct {
	store *Store
	name  string
}

// LoadAll returns every record in insertion order. A missing or unreadable
// backing document yields an empty slice; the condition is logged.
func (c *Collection) LoadAll(ctx context.Context) []Record {
	records, err := c.ReadAll(ctx)
	if err != nil {
		if errors.Is(err, ErrNoData) {
			c.store.logger.Debug("collection not found, starting empty", "collection", c.name)
		} else {
			c.store.logger.Warn("collection unreadable, using empty collection", "collection", c.name, "error", err)
		}
		return []Record{}
	}
	return records
}

// ReadAll is LoadAll without the fallback.
func (c *Collection) ReadAll(ctx context.Context) ([]Record, error) {
	if err := validateName(c.name); err != nil {
		return nil, err
	}
	data, err := c.store.backend.Read(ctx, c.name)
	if err != nil {
		return nil, err
	}
	records, err := decodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", c.name, err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// WriteAll replaces the whole collection. Writing back exactly what is
// stored leaves the backing document untouched.
func (c *Collection) WriteAll(ctx context.Context, records []Record) error {
	if err := validateName(c.name); err != nil {
		return err
	}
	previous, err := c.store.backend.Read(ctx, c.name)
	if err != nil {
		previous = nil
	}
	return c.write(ctx, records, readLayout(previous))
}

func (c *Collection) write(ctx context.Context, records []Record, previous layout) error {
	if previous.unchanged(records) {
		return nil
	}
	data, err := encodeRecords(records, previous)
	if err != nil {
		return err
	}
	if err := c.store.backend.Write(ctx, c.name, data); err != nil {
		return fmt.Errorf("write collection %s: %w", c.name, err)
	}
	return nil
}

// Find returns the first record with the given id.
func (c *Collection) Find(ctx context.Context, id string) (Record, error) {
	for _, record := range c.LoadAll(ctx) {
		if record.ID() == id {
			return record, nil
		}
	}
	return nil, ErrNotFound
}

// AppendOne stores record at the end of the collection, assigning an id when
// it has none, and returns the stored record.
func (c *Collection) AppendOne(ctx context.Context, record Record) (Record, error) {
	records, previous, err := c.loadForWrite(ctx)
	if err != nil {
		return nil, err
	}
	stored := record.clone()
	if stored.ID() == "" {
		stored["id"] = c.store.newID()
	}
	records = append(records, stored)
	if err := c.write(ctx, records, previous); err != nil {
		return nil, err
	}
	return stored, nil
}

// UpdateOne merges patch into the record with the given id and stamps
// updatedAt. The id field of patch is ignored. Nothing is written when the id
// is unknown.
func (c *Collection) UpdateOne(ctx context.Context, id string, patch Record) (Record, error) {
	records, previous, err := c.loadForWrite(ctx)
	if err != nil {
		return nil, err
	}
	index := indexOf(records, id)
	if index < 0 {
		return nil, ErrNotFound
	}
	updated := records[index].clone()
	for key, value := range patch {
		if key == "id" {
			continue
		}
		updated[key] = value
	}
	updated["updatedAt"] = c.store.now().UTC().Format(time.RFC3339Nano)
	records[index] = updated
	if err := c.write(ctx, records, previous); err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteOne removes the record with the given id.
func (c *Collection) DeleteOne(ctx context.Context, id string) error {
	return c.DeleteOneWithCleanup(ctx, id, nil)
}

// DeleteOneWithCleanup removes the record with the given id after running
// cleanup on it. A cleanup failure is logged and the deletion proceeds.
func (c *Collection) DeleteOneWithCleanup(ctx context.Context, id string, cleanup func(context.Context, Record) error) error {
	records, previous, err := c.loadForWrite(ctx)
	if err != nil {
		return err
	}
	index := indexOf(records, id)
	if index < 0 {
		return ErrNotFound
	}
	if cleanup != nil {
		if err := cleanup(ctx, records[index]); err != nil {
			c.store.logger.Warn("delete cleanup failed, continuing", "collection", c.name, "id", id, "error", err)
		}
	}
	remaining := make([]Record, 0, len(records)-1)
	remaining = append(remaining, records[:index]...)
	remaining = append(remaining, records[index+1:]...)
	return c.write(ctx, remaining, previous)
}

// loadForWrite reads the collection for a read-modify-write cycle. Missing or
// corrupt data counts as empty; a failing backend aborts the write.
func (c *Collection) loadForWrite(ctx context.Context) ([]Record, layout, error) {
	if err := validateName(c.name); err != nil {
		return nil, layout{}, err
	}
	data, err := c.store.backend.Read(ctx, c.name)
	if errors.Is(err, ErrNoData) {
		return []Record{}, layout{}, nil
	}
	if err != nil {
		return nil, layout{}, fmt.Errorf("read collection %s: %w", c.name, err)
	}
	records, err := decodeRecords(data)
	if err != nil {
		c.store.logger.Warn("collection unparsable, treating as empty", "collection", c.name, "error", err)
		return []Record{}, layout{}, nil
	}
	return records, readLayout(data), nil
}

func indexOf(records []Record, id string) int {
	if id == "" {
		return -1
	}
	for i, record := range records {
		if record.ID() == id {
			return i
		}
	}
	return -1
}
