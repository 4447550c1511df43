// Package testutil provides testing utilities.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/idilsaglam/dwntodo/internal/dwn"
	"github.com/idilsaglam/dwntodo/internal/identity"
)

// FakeNode is an in-memory DWN endpoint for testing. It speaks the same
// JSON-RPC wire format as a real node and verifies every signature.
type FakeNode struct {
	mu      sync.Mutex
	records map[string]*storedRecord
	seq     int
	calls   map[string]int

	// Error injection: records method -> reply status code.
	failures map[string]int

	// InlineLimit drops encodedData from query entries larger than the
	// limit, forcing clients to read them. Zero inlines everything.
	InlineLimit int
}

type storedRecord struct {
	tenant string
	msg    dwn.Message
	data   []byte
	seq    int
}

// NewFakeNode creates an empty node.
func NewFakeNode() *FakeNode {
	return &FakeNode{
		records:  make(map[string]*storedRecord),
		calls:    make(map[string]int),
		failures: make(map[string]int),
	}
}

// Start serves the node on a local listener for the life of the test
// and returns its URL.
func (f *FakeNode) Start(t testing.TB) string {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return srv.URL
}

// FailMethod makes every later message of method reply with code.
// A zero code clears the failure.
func (f *FakeNode) FailMethod(method string, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code == 0 {
		delete(f.failures, method)
		return
	}
	f.failures[method] = code
}

// Calls returns how many authenticated messages of method arrived.
func (f *FakeNode) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Len returns the number of stored records.
func (f *FakeNode) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

// Payload returns the latest data written to recordID.
func (f *FakeNode) Payload(recordID string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[recordID]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), rec.data...), true
}

// ServeHTTP implements http.Handler.
func (f *FakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req dwn.RPCRequest
	if err := json.Unmarshal([]byte(r.Header.Get(dwn.RequestHeader)), &req); err != nil {
		writeRPCError(w, "", -32700, "parse error")
		return
	}
	if req.Method != dwn.RPCMethod {
		writeRPCError(w, req.ID, -32601, "method not found")
		return
	}
	msg := req.Params.Message
	if msg == nil {
		writeRPCError(w, req.ID, -32602, "missing message")
		return
	}
	claims, err := dwn.Verify(msg, identity.Resolve)
	if err != nil {
		writeReply(w, req.ID, &dwn.Reply{Status: dwn.Status{Code: http.StatusUnauthorized, Detail: err.Error()}})
		return
	}
	if claims.Issuer != req.Params.Target {
		writeReply(w, req.ID, &dwn.Reply{Status: dwn.Status{Code: http.StatusForbidden, Detail: "author is not the tenant"}})
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeRPCError(w, req.ID, -32603, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	method := msg.Descriptor.Method
	f.calls[method]++
	if code, ok := f.failures[method]; ok {
		writeReply(w, req.ID, &dwn.Reply{Status: dwn.Status{Code: code, Detail: "injected failure"}})
		return
	}

	var reply *dwn.Reply
	switch method {
	case dwn.MethodQuery:
		reply = f.query(req.Params.Target, msg)
	case dwn.MethodWrite:
		reply = f.write(req.Params.Target, msg, data)
	case dwn.MethodRead:
		reply = f.read(req.Params.Target, msg)
	case dwn.MethodDelete:
		reply = f.delete(req.Params.Target, msg)
	default:
		reply = &dwn.Reply{Status: dwn.Status{Code: http.StatusBadRequest, Detail: "unknown method " + method}}
	}
	writeReply(w, req.ID, reply)
}

func (f *FakeNode) query(tenant string, msg *dwn.Message) *dwn.Reply {
	var matches []*storedRecord
	for _, rec := range f.records {
		if rec.tenant != tenant {
			continue
		}
		if flt := msg.Descriptor.Filter; flt != nil {
			if flt.Schema != "" && flt.Schema != rec.msg.Descriptor.Schema {
				continue
			}
			if flt.DataFormat != "" && flt.DataFormat != rec.msg.Descriptor.DataFormat {
				continue
			}
		}
		matches = append(matches, rec)
	}
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.msg.Descriptor.DateCreated != b.msg.Descriptor.DateCreated {
			return a.msg.Descriptor.DateCreated < b.msg.Descriptor.DateCreated
		}
		return a.seq < b.seq
	})
	if msg.Descriptor.DateSort == dwn.CreatedDescending {
		for i, j := 0, len(matches)-1; i < j; i, j = i+1, j-1 {
			matches[i], matches[j] = matches[j], matches[i]
		}
	}
	entries := make([]dwn.Message, 0, len(matches))
	for _, rec := range matches {
		entry := rec.msg
		if f.InlineLimit == 0 || len(rec.data) <= f.InlineLimit {
			entry.EncodedData = dwn.EncodeData(rec.data)
		}
		entries = append(entries, entry)
	}
	return &dwn.Reply{Status: dwn.Status{Code: http.StatusOK}, Entries: entries}
}

func (f *FakeNode) write(tenant string, msg *dwn.Message, data []byte) *dwn.Reply {
	d := msg.Descriptor
	if d.DataCID != dwn.DataCID(data) || d.DataSize != len(data) {
		return &dwn.Reply{Status: dwn.Status{Code: http.StatusBadRequest, Detail: "data does not match dataCid"}}
	}
	if existing, ok := f.records[msg.RecordID]; ok {
		if existing.tenant != tenant {
			return &dwn.Reply{Status: dwn.Status{Code: http.StatusForbidden}}
		}
		if d.DateCreated != existing.msg.Descriptor.DateCreated {
			return &dwn.Reply{Status: dwn.Status{Code: http.StatusBadRequest, Detail: "dateCreated is immutable"}}
		}
		if d.MessageTimestamp < existing.msg.Descriptor.MessageTimestamp {
			return &dwn.Reply{Status: dwn.Status{Code: http.StatusConflict, Detail: "newer write exists"}}
		}
		existing.msg = *msg
		existing.msg.Authorization = nil
		existing.data = data
		return &dwn.Reply{Status: dwn.Status{Code: http.StatusAccepted}}
	}

	descriptorCID, err := dwn.ComputeCID(d)
	if err != nil {
		return &dwn.Reply{Status: dwn.Status{Code: http.StatusBadRequest, Detail: err.Error()}}
	}
	want, err := dwn.RecordID(descriptorCID, tenant)
	if err != nil || want != msg.RecordID {
		return &dwn.Reply{Status: dwn.Status{Code: http.StatusBadRequest, Detail: "recordId does not match initial write"}}
	}
	f.seq++
	stored := &storedRecord{tenant: tenant, msg: *msg, data: data, seq: f.seq}
	stored.msg.Authorization = nil
	f.records[msg.RecordID] = stored
	return &dwn.Reply{Status: dwn.Status{Code: http.StatusAccepted}}
}

func (f *FakeNode) read(tenant string, msg *dwn.Message) *dwn.Reply {
	var id string
	if msg.Descriptor.Filter != nil {
		id = msg.Descriptor.Filter.RecordID
	}
	rec, ok := f.records[id]
	if !ok || rec.tenant != tenant {
		return &dwn.Reply{Status: dwn.Status{Code: http.StatusNotFound}}
	}
	out := rec.msg
	out.EncodedData = dwn.EncodeData(rec.data)
	return &dwn.Reply{Status: dwn.Status{Code: http.StatusOK}, Record: &out}
}

func (f *FakeNode) delete(tenant string, msg *dwn.Message) *dwn.Reply {
	rec, ok := f.records[msg.Descriptor.RecordID]
	if !ok || rec.tenant != tenant {
		return &dwn.Reply{Status: dwn.Status{Code: http.StatusNotFound}}
	}
	delete(f.records, msg.Descriptor.RecordID)
	return &dwn.Reply{Status: dwn.Status{Code: http.StatusAccepted}}
}

func writeReply(w http.ResponseWriter, id string, reply *dwn.Reply) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(dwn.RPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  &dwn.RPCResult{Reply: reply},
	})
}

func writeRPCError(w http.ResponseWriter, id string, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(dwn.RPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &dwn.RPCError{Code: code, Message: message},
	})
}
