package chat

import (
	"slices"
	"time"

	"huddle/cmd/internal/docstore"
)

// ConversationType distinguishes one-to-one from multi-party conversations.
type ConversationType string

const (
	Direct ConversationType = "direct"
	Group  ConversationType = "group"
)

// MessageType is the kind of content a message carries.
type MessageType string

const (
	Text  MessageType = "text"
	Image MessageType = "image"
	File  MessageType = "file"
)

func (t MessageType) valid() bool {
	switch t {
	case Text, Image, File:
		return true
	default:
		return false
	}
}

// Document field names.
const (
	fieldParticipants      = "participants"
	fieldType              = "type"
	fieldLastMessage       = "lastMessage"
	fieldLastMessageTime   = "lastMessageTime"
	fieldLastMessageSender = "lastMessageSender"

	fieldConversationID = "conversationId"
	fieldSenderID       = "senderId"
	fieldContent        = "content"
	fieldReadBy         = "readBy"
)

// Conversation is a participant set plus the denormalised summary of its latest message.
type Conversation struct {
	ID                string           `json:"id"`
	Participants      []string         `json:"participants"`
	Type              ConversationType `json:"type"`
	LastMessage       string           `json:"lastMessage"`
	LastMessageTime   time.Time        `json:"lastMessageTime,omitzero"`
	LastMessageSender string           `json:"lastMessageSender,omitempty"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

// HasParticipant reports whether id is one of the participants.
func (c Conversation) HasParticipant(id string) bool {
	return slices.Contains(c.Participants, id)
}

// Unread reports whether viewer has not seen the latest message: someone else sent it
// and it is non-empty. It is derived from the summary only.
func Unread(c Conversation, viewer string) bool {
	return c.LastMessageSender != viewer && c.LastMessage != ""
}

// Message is one entry in a conversation. ReadBy always contains SenderID and only grows.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversationId"`
	SenderID       string      `json:"senderId"`
	Content        string      `json:"content"`
	Type           MessageType `json:"type"`
	ReadBy         []string    `json:"readBy"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// ReadByViewer reports whether viewer is in ReadBy.
func (m Message) ReadByViewer(viewer string) bool {
	return slices.Contains(m.ReadBy, viewer)
}

// ConversationFromDocument decodes a stored conversation.
func ConversationFromDocument(doc docstore.Document) Conversation {
	return Conversation{
		ID:                doc.ID,
		Participants:      doc.Strings(fieldParticipants),
		Type:              ConversationType(doc.String(fieldType)),
		LastMessage:       doc.String(fieldLastMessage),
		LastMessageTime:   doc.Time(fieldLastMessageTime),
		LastMessageSender: doc.String(fieldLastMessageSender),
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
	}
}

// MessageFromDocument decodes a stored message.
func MessageFromDocument(doc docstore.Document) Message {
	readBy := doc.Strings(fieldReadBy)
	if readBy == nil {
		readBy = []string{}
	}
	return Message{
		ID:             doc.ID,
		ConversationID: doc.String(fieldConversationID),
		SenderID:       doc.String(fieldSenderID),
		Content:        doc.String(fieldContent),
		Type:           MessageType(doc.String(fieldType)),
		ReadBy:         readBy,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
}

// ConversationIDOf returns the conversation a message document belongs to.
func ConversationIDOf(doc docstore.Document) string {
	return doc.String(fieldConversationID)
}

// ParticipantsOf returns the participants of a conversation document.
func ParticipantsOf(doc docstore.Document) []string {
	return doc.Strings(fieldParticipants)
}
