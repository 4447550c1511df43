package dwn

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Record is a handle on a record fetched from or written to the node.
// Update writes through the client that produced it.
type Record struct {
	client *Client
	msg    Message
	data   []byte
}

func (r *Record) ID() string         { return r.msg.RecordID }
func (r *Record) Schema() string     { return r.msg.Descriptor.Schema }
func (r *Record) DataFormat() string { return r.msg.Descriptor.DataFormat }

// DateCreated is the creation time of the initial write. The zero time
// is returned if the node sent a malformed timestamp.
func (r *Record) DateCreated() time.Time {
	t, err := ParseTimestamp(r.msg.Descriptor.DateCreated)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Data returns a copy of the record payload.
func (r *Record) Data() []byte { return cloneBytes(r.data) }

// JSON decodes the payload into v.
func (r *Record) JSON(v any) error {
	if err := json.Unmarshal(r.data, v); err != nil {
		return fmt.Errorf("record %s: %w", r.ID(), err)
	}
	return nil
}

// Update replaces the record payload. The schema, data format and
// creation date of the record are kept.
func (r *Record) Update(ctx context.Context, data []byte) error {
	msg, err := r.client.newWrite(writeParams{
		recordID:    r.ID(),
		dateCreated: r.msg.Descriptor.DateCreated,
		schema:      r.msg.Descriptor.Schema,
		dataFormat:  r.msg.Descriptor.DataFormat,
		data:        data,
	})
	if err != nil {
		return err
	}
	if _, err := r.client.process(ctx, msg, data); err != nil {
		return err
	}
	r.msg = *msg
	r.data = cloneBytes(data)
	return nil
}
