package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"huddle/cmd/internal/chat"
	"huddle/cmd/internal/viewcache"
)

type resolveRequest struct {
	ParticipantID  string   `json:"participantId"`
	ParticipantIDs []string `json:"participantIds"`
}

type sendRequest struct {
	Content string           `json:"content"`
	Type    chat.MessageType `json:"type"`
}

type sendResponse struct {
	Message      chat.Message `json:"message"`
	SummaryStale bool         `json:"summaryStale"`
}

type messagesResponse struct {
	Messages []chat.Message `json:"messages"`
	Limit    int            `json:"limit"`
	Offset   int            `json:"offset"`
}

type conversationsResponse struct {
	Conversations []chat.ConversationView `json:"conversations"`
}

type markReadResponse struct {
	Updated int `json:"updated"`
}

type partialReadResponse struct {
	Error   apiError `json:"error"`
	Updated int      `json:"updated"`
	Failed  int      `json:"failed"`
}

// handleResolve finds or creates the conversation between the viewer and the
// requested participants.
func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	others := req.ParticipantIDs
	if p := strings.TrimSpace(req.ParticipantID); p != "" {
		others = append(others, p)
	}
	if len(others) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "participantId is required")
		return
	}

	conv, err := h.chat.Resolve(r.Context(), append([]string{viewer(r)}, others...))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *Handler) handleConversations(w http.ResponseWriter, r *http.Request) {
	viewerID := viewer(r)
	body, err := h.cachedView(r.Context(), viewcache.ConversationsKey(viewerID), func() (any, error) {
		convs, err := h.chat.Conversations(r.Context(), viewerID)
		if err != nil {
			return nil, err
		}
		return conversationsResponse{Conversations: convs}, nil
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, body)
}

func (h *Handler) handleConversation(w http.ResponseWriter, r *http.Request) {
	viewerID := viewer(r)
	conv, err := h.chat.ConversationFor(r.Context(), chi.URLParam(r, "id"), viewerID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat.ConversationView{Conversation: conv, Unread: chat.Unread(conv, viewerID)})
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", chat.DefaultPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "limit must be an integer")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "offset must be a non-negative integer")
		return
	}
	limit = chat.ClampPageSize(limit)

	// Access is checked on every read; only the page itself is cached.
	conv, err := h.chat.ConversationFor(r.Context(), chi.URLParam(r, "id"), viewer(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	body, err := h.cachedView(r.Context(), viewcache.MessagesKey(conv.ID, limit, offset), func() (any, error) {
		msgs, err := h.chat.List(r.Context(), conv.ID, limit, offset)
		if err != nil {
			return nil, err
		}
		return messagesResponse{Messages: msgs, Limit: limit, Offset: offset}, nil
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, body)
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	viewerID := viewer(r)
	if ok, retryAfter := h.sends.Allow(viewerID, h.now()); !ok {
		writeRateLimited(w, retryAfter)
		return
	}

	var req sendRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	conv, err := h.chat.ConversationFor(r.Context(), chi.URLParam(r, "id"), viewerID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	msg, err := h.chat.Send(r.Context(), chat.SendInput{
		ConversationID: conv.ID,
		SenderID:       viewerID,
		Content:        req.Content,
		Type:           req.Type,
	})
	if pw, ok := chat.AsPartialWrite(err); ok {
		// The message exists; only the conversation summary is behind.
		h.log.Warn("api.send.partial", "conversation_id", conv.ID, "message_id", msg.ID, "err", pw.Err)
		writeJSON(w, http.StatusCreated, sendResponse{Message: msg, SummaryStale: true})
		return
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sendResponse{Message: msg})
}

func (h *Handler) handleMarkConversationRead(w http.ResponseWriter, r *http.Request) {
	viewerID := viewer(r)
	conv, err := h.chat.ConversationFor(r.Context(), chi.URLParam(r, "id"), viewerID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	n, err := h.chat.MarkConversationRead(r.Context(), conv.ID, viewerID)
	var pw *chat.PartialWriteError
	if errors.As(err, &pw) {
		writeJSON(w, http.StatusInternalServerError, partialReadResponse{
			Error:   apiError{Code: "partial_write", Message: "some messages were not marked read"},
			Updated: pw.Done,
			Failed:  pw.Failed,
		})
		return
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, markReadResponse{Updated: n})
}

func (h *Handler) handleMarkMessageRead(w http.ResponseWriter, r *http.Request) {
	viewerID := viewer(r)
	msg, err := h.chat.MessageFor(r.Context(), chi.URLParam(r, "id"), viewerID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	msg, err = h.chat.MarkMessageRead(r.Context(), msg.ID, viewerID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}
