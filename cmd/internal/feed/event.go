package feed

import (
	"slices"
	"strings"

	"huddle/cmd/internal/docstore"
)

// Action is the document lifecycle step an event reports.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Tag returns the collection-wide tag for an action, e.g.
// "collections.messages.documents.*.create".
func Tag(collection string, action Action) string {
	return "collections." + collection + ".documents.*." + string(action)
}

// Event is one change notification. Events carries every tag the change matches,
// from the most specific (document id) to the collection itself.
type Event struct {
	Events     []string          `json:"events"`
	Collection string            `json:"collection"`
	Payload    docstore.Document `json:"payload"`
}

// NewEvent builds the event emitted after a write to doc.
func NewEvent(action Action, doc docstore.Document) Event {
	base := "collections." + doc.Collection + ".documents"
	return Event{
		Events: []string{
			base + "." + doc.ID + "." + string(action),
			base + ".*." + string(action),
			base + "." + doc.ID,
			"collections." + doc.Collection,
		},
		Collection: doc.Collection,
		Payload:    doc,
	}
}

// Includes reports whether the event carries tag.
func (e Event) Includes(tag string) bool {
	return slices.Contains(e.Events, tag)
}

// Action returns the lifecycle action encoded in the tags.
func (e Event) Action() (Action, bool) {
	for _, tag := range e.Events {
		i := strings.LastIndexByte(tag, '.')
		if i < 0 {
			continue
		}
		switch a := Action(tag[i+1:]); a {
		case ActionCreate, ActionUpdate, ActionDelete:
			return a, true
		}
	}
	return "", false
}
