package todo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/idilsaglam/dwntodo/internal/dwn"
	"github.com/idilsaglam/dwntodo/internal/model"
)

// DefaultDataFormat is the content type of every todo record.
const DefaultDataFormat = "application/json"

// RecordStore is the part of the DWN client the controller needs.
// *dwn.Client satisfies it.
type RecordStore interface {
	Query(ctx context.Context, filter dwn.QueryFilter, sort dwn.DateSort) ([]*dwn.Record, error)
	Create(ctx context.Context, req dwn.CreateRequest) (*dwn.Record, error)
	Read(ctx context.Context, recordID string) (*dwn.Record, error)
	Delete(ctx context.Context, recordID string) error
}

// Backend is what the views need from a controller.
type Backend interface {
	Fetch(ctx context.Context) ([]model.Todo, error)
	Create(ctx context.Context, data model.Data) (model.Todo, error)
	Save(ctx context.Context, id string, data model.Data) error
	Delete(ctx context.Context, id string) error
}

// Controller maps todos onto records of one schema.
type Controller struct {
	store      RecordStore
	schema     string
	dataFormat string
}

var _ Backend = (*Controller)(nil)

// NewController returns a controller for records of schema. An empty
// dataFormat means DefaultDataFormat.
func NewController(store RecordStore, schema, dataFormat string) *Controller {
	if dataFormat == "" {
		dataFormat = DefaultDataFormat
	}
	return &Controller{store: store, schema: schema, dataFormat: dataFormat}
}

// Fetch lists every todo, oldest first.
func (c *Controller) Fetch(ctx context.Context) ([]model.Todo, error) {
	records, err := c.store.Query(ctx, dwn.QueryFilter{Schema: c.schema}, dwn.CreatedAscending)
	if err != nil {
		return nil, fmt.Errorf("query todos: %w", err)
	}
	todos := make([]model.Todo, 0, len(records))
	for _, rec := range records {
		var d model.Data
		if err := rec.JSON(&d); err != nil {
			return nil, fmt.Errorf("decode todo: %w", err)
		}
		todos = append(todos, model.FromData(rec.ID(), d))
	}
	return todos, nil
}

// Create writes a new todo record and returns it with its record id.
func (c *Controller) Create(ctx context.Context, data model.Data) (model.Todo, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return model.Todo{}, fmt.Errorf("encode todo: %w", err)
	}
	rec, err := c.store.Create(ctx, dwn.CreateRequest{
		Data:       payload,
		Schema:     c.schema,
		DataFormat: c.dataFormat,
	})
	if err != nil {
		return model.Todo{}, fmt.Errorf("create todo: %w", err)
	}
	var confirmed model.Data
	if err := rec.JSON(&confirmed); err != nil {
		return model.Todo{}, fmt.Errorf("decode todo: %w", err)
	}
	return model.FromData(rec.ID(), confirmed), nil
}

// Save reads the record and writes data over it.
func (c *Controller) Save(ctx context.Context, id string, data model.Data) error {
	rec, err := c.store.Read(ctx, id)
	if err != nil {
		return fmt.Errorf("read todo %s: %w", id, err)
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode todo: %w", err)
	}
	if err := rec.Update(ctx, payload); err != nil {
		return fmt.Errorf("update todo %s: %w", id, err)
	}
	return nil
}

// Delete removes the todo record.
func (c *Controller) Delete(ctx context.Context, id string) error {
	if err := c.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete todo %s: %w", id, err)
	}
	return nil
}
