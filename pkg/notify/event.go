package notify

import (
	"encoding/json"
	"time"
)

// Action names a storage mutation.
type Action string

const (
	ActionCreate         Action = "create"
	ActionModify         Action = "modify"
	ActionDelete         Action = "delete"
	ActionMakeCollection Action = "make_collection"
	ActionRename         Action = "rename"
)

// Event is one recorded mutation. Secondary is only set for renames and
// holds the new location.
type Event struct {
	Time      time.Time
	Action    Action
	Path      string
	Secondary string
}

// MarshalJSON encodes the event as [timestamp, action, path] with the
// secondary path appended when present.
func (e Event) MarshalJSON() ([]byte, error) {
	item := []string{e.Time.Format(time.RFC3339), string(e.Action), e.Path}
	if e.Secondary != "" {
		item = append(item, e.Secondary)
	}
	return json.Marshal(item)
}

type payload struct {
	Changes []Event `json:"changes"`
}
