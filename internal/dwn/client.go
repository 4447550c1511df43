// Package dwn is a client for the records interface of a decentralized
// web node. It speaks JSON-RPC over HTTP: the envelope travels in the
// dwn-request header and record data, when there is any, is the request
// body.
//
// Every message is authored by a Signer. Descriptors are content
// addressed with deterministic CBOR and the authorization is a compact
// EdDSA JWS over the descriptor CID.
package dwn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

const (
	// RequestHeader carries the JSON-RPC envelope.
	RequestHeader = "dwn-request"

	// RPCMethod is the only JSON-RPC method the node exposes for messages.
	RPCMethod = "dwn.processMessage"

	// maxReplySize bounds how much of a reply we are willing to decode.
	maxReplySize = 16 << 20
)

// RPCRequest is the JSON-RPC envelope.
type RPCRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      string    `json:"id"`
	Method  string    `json:"method"`
	Params  RPCParams `json:"params"`
}

// RPCParams addresses a message to a tenant DID.
type RPCParams struct {
	Target  string   `json:"target"`
	Message *Message `json:"message"`
}

// RPCResponse is the JSON-RPC reply envelope.
type RPCResponse struct {
	JSONRPC string     `json:"jsonrpc"`
	ID      string     `json:"id"`
	Result  *RPCResult `json:"result,omitempty"`
	Error   *RPCError  `json:"error,omitempty"`
}

// RPCResult wraps the records reply.
type RPCResult struct {
	Reply *Reply `json:"reply"`
}

// Reply is the node's answer to a records message.
type Reply struct {
	Status  Status    `json:"status"`
	Entries []Message `json:"entries,omitempty"`
	Record  *Message  `json:"record,omitempty"`
}

// Client talks to one DWN endpoint on behalf of one author.
type Client struct {
	endpoint   string
	target     string
	signer     Signer
	httpClient *http.Client
	timeout    time.Duration
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds every request. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithClock replaces time.Now for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithTarget addresses messages to a tenant other than the signer.
func WithTarget(did string) Option {
	return func(c *Client) { c.target = did }
}

// New creates a client for endpoint. The signer's DID is the target
// tenant unless WithTarget says otherwise.
func New(endpoint string, signer Signer, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("endpoint %q: scheme must be http or https", endpoint)
	}
	if signer == nil {
		return nil, errors.New("dwn: nil signer")
	}
	c := &Client{
		endpoint:   u.String(),
		target:     signer.DID(),
		signer:     signer,
		httpClient: http.DefaultClient,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}


// QueryFilter selects records for Query.
type QueryFilter struct {
	Schema     string
	DataFormat string
}

// Query returns every record matching filter, ordered by sort. Records
// whose data was too large to be inlined are read individually.
func (c *Client) Query(ctx context.Context, filter QueryFilter, sort DateSort) ([]*Record, error) {
	if sort == "" {
		sort = CreatedAscending
	}
	msg := &Message{
		Descriptor: Descriptor{
			Interface:        InterfaceRecords,
			Method:           MethodQuery,
			MessageTimestamp: formatTimestamp(c.now()),
			Filter:           &Filter{Schema: filter.Schema, DataFormat: filter.DataFormat},
			DateSort:         sort,
		},
	}
	reply, err := c.process(ctx, msg, nil)
	if err != nil {
		return nil, err
	}
	records := make([]*Record, 0, len(reply.Entries))
	for i := range reply.Entries {
		entry := reply.Entries[i]
		if entry.EncodedData == "" && entry.Descriptor.DataSize > 0 {
			rec, err := c.Read(ctx, entry.RecordID)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", entry.RecordID, err)
			}
			records = append(records, rec)
			continue
		}
		rec, err := c.recordFromMessage(entry)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// CreateRequest describes a new record.
type CreateRequest struct {
	Data       []byte
	Schema     string
	DataFormat string
}

// Create writes a new record and returns its handle.
func (c *Client) Create(ctx context.Context, req CreateRequest) (*Record, error) {
	msg, err := c.newWrite(writeParams{
		schema:     req.Schema,
		dataFormat: req.DataFormat,
		data:       req.Data,
	})
	if err != nil {
		return nil, err
	}
	if _, err := c.process(ctx, msg, req.Data); err != nil {
		return nil, err
	}
	return &Record{client: c, msg: *msg, data: cloneBytes(req.Data)}, nil
}

// Read fetches a single record by id.
func (c *Client) Read(ctx context.Context, recordID string) (*Record, error) {
	msg := &Message{
		Descriptor: Descriptor{
			Interface:        InterfaceRecords,
			Method:           MethodRead,
			MessageTimestamp: formatTimestamp(c.now()),
			Filter:           &Filter{RecordID: recordID},
		},
	}
	reply, err := c.process(ctx, msg, nil)
	if err != nil {
		return nil, err
	}
	if reply.Record == nil {
		return nil, &StatusError{Method: MethodRead, Code: http.StatusNotFound, Detail: "empty read reply"}
	}
	return c.recordFromMessage(*reply.Record)
}

// Delete removes a record by id.
func (c *Client) Delete(ctx context.Context, recordID string) error {
	msg := &Message{
		RecordID: recordID,
		Descriptor: Descriptor{
			Interface:        InterfaceRecords,
			Method:           MethodDelete,
			MessageTimestamp: formatTimestamp(c.now()),
			RecordID:         recordID,
		},
	}
	_, err := c.process(ctx, msg, nil)
	return err
}

type writeParams struct {
	recordID    string
	dateCreated string
	schema      string
	dataFormat  string
	data        []byte
}

func (c *Client) newWrite(p writeParams) (*Message, error) {
	now := formatTimestamp(c.now())
	dateCreated := p.dateCreated
	if dateCreated == "" {
		dateCreated = now
	}
	msg := &Message{
		RecordID: p.recordID,
		Descriptor: Descriptor{
			Interface:        InterfaceRecords,
			Method:           MethodWrite,
			MessageTimestamp: now,
			Schema:           p.schema,
			DataFormat:       p.dataFormat,
			DataCID:          DataCID(p.data),
			DataSize:         len(p.data),
			DateCreated:      dateCreated,
		},
	}
	if msg.RecordID == "" {
		descriptorCID, err := ComputeCID(msg.Descriptor)
		if err != nil {
			return nil, fmt.Errorf("descriptor cid: %w", err)
		}
		msg.RecordID, err = RecordID(descriptorCID, c.signer.DID())
		if err != nil {
			return nil, fmt.Errorf("record id: %w", err)
		}
	}
	return msg, nil
}

// process signs msg, posts it and returns the reply if its status is a
// success.
func (c *Client) process(ctx context.Context, msg *Message, data []byte) (*Reply, error) {
	if err := sign(c.signer, msg); err != nil {
		return nil, err
	}
	method := msg.Descriptor.Method

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	envelope, err := json.Marshal(RPCRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  RPCMethod,
		Params:  RPCParams{Target: c.target, Message: msg},
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var body io.Reader = http.NoBody
	if data != nil {
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(RequestHeader, string(envelope))
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("records %s: %w", method, err)
	}
	defer resp.Body.Close()

	var rpcResp RPCResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxReplySize)).Decode(&rpcResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, &StatusError{Method: method, Code: resp.StatusCode, Detail: resp.Status}
		}
		return nil, fmt.Errorf("records %s: decode reply: %w", method, err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	if rpcResp.Result == nil || rpcResp.Result.Reply == nil {
		return nil, fmt.Errorf("records %s: reply missing", method)
	}
	reply := rpcResp.Result.Reply
	if !reply.Status.OK() {
		return nil, &StatusError{Method: method, Code: reply.Status.Code, Detail: reply.Status.Detail}
	}
	return reply, nil
}

func (c *Client) recordFromMessage(msg Message) (*Record, error) {
	data, err := DecodeData(msg.EncodedData)
	if err != nil {
		return nil, fmt.Errorf("decode data of %s: %w", msg.RecordID, err)
	}
	msg.EncodedData = ""
	return &Record{client: c, msg: msg, data: data}, nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
