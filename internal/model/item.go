package model

import "strings"

// TempIDPrefix marks ids assigned locally before the node confirms a write.
const TempIDPrefix = "tmp-"

// Data is the JSON payload stored in each record.
type Data struct {
	Completed   bool   `json:"completed"`
	Description string `json:"description"`
}

// Todo is the domain model for a todo entry. ID is the record id, or a
// temporary id while the create is in flight.
type Todo struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// Data returns the payload to write for t.
func (t Todo) Data() Data {
	return Data{Completed: t.Completed, Description: t.Description}
}

// Pending reports whether t is still waiting for its record id.
func (t Todo) Pending() bool { return IsTempID(t.ID) }

// IsTempID reports whether id was generated locally.
func IsTempID(id string) bool { return strings.HasPrefix(id, TempIDPrefix) }

// FromData builds a Todo for record id.
func FromData(id string, d Data) Todo {
	return Todo{ID: id, Description: d.Description, Completed: d.Completed}
}
