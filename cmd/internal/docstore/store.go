package docstore

import (
	"context"
	"slices"
	"strings"
)

// Collection names.
const (
	Users         = "users"
	Posts         = "posts"
	Conversations = "conversations"
	Messages      = "messages"
	Follows       = "follows"
	Groups        = "groups"
	GroupMembers  = "groupMembers"
	GroupRequests = "groupRequests"
)

// Store is the document persistence boundary.
//
// Requirements:
//   - Read-your-writes for a single caller.
//   - Update merges the patch into the stored document (top-level keys) and bumps $updatedAt.
//   - AddToSet appends the values missing from a string-list field in one atomic step,
//     so concurrent callers never drop each other's values.
//   - List/Count apply every filter; Count ignores ordering and paging.
//   - Not-found is reported as NotFoundError.
type Store interface {
	Create(ctx context.Context, collection string, data map[string]any) (Document, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	Update(ctx context.Context, collection, id string, patch map[string]any) (Document, error)
	AddToSet(ctx context.Context, collection, id, field string, values ...string) (Document, error)
	Delete(ctx context.Context, collection, id string) error
	List(ctx context.Context, collection string, q Query) ([]Document, error)
	Count(ctx context.Context, collection string, q Query) (int, error)
	Close() error
}

// setValues validates an AddToSet call and returns values without blanks or repeats.
func setValues(field string, values []string) ([]string, error) {
	if strings.TrimSpace(field) == "" || strings.HasPrefix(field, "$") {
		return nil, invalid("add to set: bad field " + field)
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || slices.Contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, invalid("add to set: no values")
	}
	return out, nil
}
