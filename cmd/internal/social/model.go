// Package social holds the follow graph, the home feed and user search. It shares the
// document store with the chat core and follows the same non-transactional rules.
package social

import (
	"errors"
	"time"

	"huddle/cmd/internal/docstore"
)

const (
	fieldFollowerID  = "followerId"
	fieldFollowingID = "followingId"

	fieldCreator  = "creator"
	fieldGroupID  = "groupId"
	fieldCaption  = "caption"
	fieldImageURL = "imageUrl"
	fieldLocation = "location"
	fieldTags     = "tags"

	fieldUserID   = "userId"
	fieldName     = "name"
	fieldUsername = "username"
	fieldBio      = "bio"
)

// ErrInvalidInput is shared with the document store so callers test one kind.
var ErrInvalidInput = docstore.ErrInvalidInput

// OpError is the store's typed operation error.
type OpError = docstore.OpError

func invalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

// IsInvalidInput reports whether err is an input validation failure.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

// Post is a feed entry. GroupID is empty for regular posts.
type Post struct {
	ID        string    `json:"id"`
	Creator   string    `json:"creator"`
	GroupID   string    `json:"groupId,omitempty"`
	Caption   string    `json:"caption"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	Location  string    `json:"location,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// PostFromDocument maps a posts document.
func PostFromDocument(doc docstore.Document) Post {
	return Post{
		ID:        doc.ID,
		Creator:   doc.String(fieldCreator),
		GroupID:   doc.String(fieldGroupID),
		Caption:   doc.String(fieldCaption),
		ImageURL:  doc.String(fieldImageURL),
		Location:  doc.String(fieldLocation),
		Tags:      doc.Strings(fieldTags),
		CreatedAt: doc.CreatedAt,
	}
}

// User is the public profile.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	Bio       string    `json:"bio,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserFromDocument maps a users document.
func UserFromDocument(doc docstore.Document) User {
	return User{
		ID:        doc.ID,
		Name:      doc.String(fieldName),
		Username:  doc.String(fieldUsername),
		ImageURL:  doc.String(fieldImageURL),
		Bio:       doc.String(fieldBio),
		CreatedAt: doc.CreatedAt,
	}
}

// FollowStats are the two follow counters of a user.
type FollowStats struct {
	Followers int `json:"followers"`
	Following int `json:"following"`
}
