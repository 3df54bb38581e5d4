package feed

import (
	"context"
	"log/slog"

	"huddle/cmd/internal/docstore"
)

// Emitting wraps a Store so every successful Create/Update/Delete is published to f.
// A publish failure is logged and never fails the write: the feed is only a trigger.
func Emitting(st docstore.Store, f Feed, log *slog.Logger) docstore.Store {
	if log == nil {
		log = slog.Default()
	}
	return &emittingStore{Store: st, feed: f, log: log}
}

type emittingStore struct {
	docstore.Store
	feed Feed
	log  *slog.Logger
}

func (s *emittingStore) Create(ctx context.Context, collection string, data map[string]any) (docstore.Document, error) {
	doc, err := s.Store.Create(ctx, collection, data)
	if err != nil {
		return doc, err
	}
	s.emit(ctx, ActionCreate, doc)
	return doc, nil
}

func (s *emittingStore) Update(ctx context.Context, collection, id string, patch map[string]any) (docstore.Document, error) {
	doc, err := s.Store.Update(ctx, collection, id, patch)
	if err != nil {
		return doc, err
	}
	s.emit(ctx, ActionUpdate, doc)
	return doc, nil
}

func (s *emittingStore) AddToSet(ctx context.Context, collection, id, field string, values ...string) (docstore.Document, error) {
	doc, err := s.Store.AddToSet(ctx, collection, id, field, values...)
	if err != nil {
		return doc, err
	}
	s.emit(ctx, ActionUpdate, doc)
	return doc, nil
}

func (s *emittingStore) Delete(ctx context.Context, collection, id string) error {
	if err := s.Store.Delete(ctx, collection, id); err != nil {
		return err
	}
	s.emit(ctx, ActionDelete, docstore.Document{ID: id, Collection: collection})
	return nil
}

func (s *emittingStore) emit(ctx context.Context, action Action, doc docstore.Document) {
	// The payload is a snapshot; subscribers must not see later mutations.
	if err := s.feed.Publish(context.WithoutCancel(ctx), NewEvent(action, doc.Clone())); err != nil {
		s.log.Warn("feed.publish.fail",
			"collection", doc.Collection,
			"document_id", doc.ID,
			"action", string(action),
			"err", err,
		)
	}
}
