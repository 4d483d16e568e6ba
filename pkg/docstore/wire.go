package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Action is a bridge operation name.
type Action string

const (
	ActionPing       Action = "ping"
	ActionFind       Action = "find"
	ActionFindOne    Action = "findOne"
	ActionInsertOne  Action = "insertOne"
	ActionUpdateOne  Action = "updateOne"
	ActionDeleteOne  Action = "deleteOne"
	ActionDeleteMany Action = "deleteMany"
)

// DefaultNamespace is the database name used when none is configured.
const DefaultNamespace = "MessengerFlow"

// Update carries the field replacement for updateOne.
type Update struct {
	Set Document `json:"$set"`
}

// Request is the JSON body POSTed to the bridge. An absent Upsert means true.
type Request struct {
	Action     Action   `json:"action"`
	Collection Kind     `json:"collection,omitempty"`
	Filter     Filter   `json:"filter,omitempty"`
	Update     *Update  `json:"update,omitempty"`
	Upsert     *bool    `json:"upsert,omitempty"`
	Document   Document `json:"document,omitempty"`
	DBName     string   `json:"dbName,omitempty"`
}

// Response is the bridge reply. Error is set when the store refused the request.
type Response struct {
	OK            bool       `json:"ok,omitempty"`
	Documents     []Document `json:"documents,omitempty"`
	Document      Document   `json:"document,omitempty"`
	MatchedCount  int64      `json:"matchedCount,omitempty"`
	ModifiedCount int64      `json:"modifiedCount,omitempty"`
	UpsertedCount int64      `json:"upsertedCount,omitempty"`
	DeletedCount  int64      `json:"deletedCount,omitempty"`
	InsertedID    string     `json:"insertedId,omitempty"`
	Error         string     `json:"error,omitempty"`
	Suggestion    string     `json:"suggestion,omitempty"`
}

// Encode converts any JSON-serializable value into a Document.
func Encode(v any) (Document, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("value of type %T is not a JSON object: %w", v, err)
	}
	return doc, nil
}

// Decode converts a Document into v.
func Decode(doc Document, v any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// clone deep-copies a document through JSON so callers never share nested values.
func clone(doc Document) Document {
	out, err := Encode(doc)
	if err != nil {
		return Document{}
	}
	return out
}

// equalValue compares after normalising through JSON so 1 == 1.0 and typed strings match.
func equalValue(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	var na, nb any
	if json.Unmarshal(ab, &na) != nil || json.Unmarshal(bb, &nb) != nil {
		return false
	}
	return reflect.DeepEqual(na, nb)
}
