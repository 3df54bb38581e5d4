package docstore

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

// passthrough lets slice args (used with = ANY($n)) reach the mock the way pgx's stdlib accepts them.
type passthrough struct{}

func (passthrough) ConvertValue(v any) (driver.Value, error) { return v, nil }

func newMockStore(t *testing.T, now time.Time) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(passthrough{}))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	st, err := NewPostgresStore(db, WithSchema("hdl_test"), WithPostgresClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	return st, mock
}

func TestNewPostgresStore_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewPostgresStore(nil); err == nil {
		t.Fatalf("expected error for nil db")
	}

	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := NewPostgresStore(db, WithSchema("bad-schema;")); err == nil {
		t.Fatalf("expected invalid schema error")
	}
}

func TestPostgresStore_Create(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	st, mock := newMockStore(t, now)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "hdl_test"."documents" (collection, id, data, created_at, updated_at)`)).
		WithArgs(Messages, sqlmock.AnyArg(), sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	doc, err := st.Create(context.Background(), Messages, map[string]any{"senderId": "u1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if doc.ID == "" || doc.Collection != Messages || !doc.CreatedAt.Equal(now) {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t, time.Now().UTC())

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, data, created_at, updated_at FROM "hdl_test"."documents"`)).
		WithArgs(Conversations, "nope").
		WillReturnRows(sqlmock.NewRows([]string{"id", "data", "created_at", "updated_at"}))

	_, err := st.Get(context.Background(), Conversations, "nope")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresStore_UpdateMergesAndDecodes(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	st, mock := newMockStore(t, now)

	rows := sqlmock.NewRows([]string{"id", "data", "created_at", "updated_at"}).
		AddRow("m1", []byte(`{"senderId":"u1","readBy":["u1","u2"]}`), now.Add(-time.Minute), now)

	mock.ExpectQuery(regexp.QuoteMeta(`SET data = data || $3::jsonb`)).
		WithArgs(Messages, "m1", sqlmock.AnyArg(), now).
		WillReturnRows(rows)

	doc, err := st.Update(context.Background(), Messages, "m1", map[string]any{"readBy": []string{"u1", "u2"}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if rb := doc.Strings("readBy"); len(rb) != 2 || rb[1] != "u2" {
		t.Fatalf("unexpected readBy: %v", rb)
	}
	if doc.String("senderId") != "u1" {
		t.Fatalf("expected merged senderId, got %q", doc.String("senderId"))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresStore_ListBuildsFilters(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	st, mock := newMockStore(t, now)

	want := `SELECT id, data, created_at, updated_at FROM "hdl_test"."documents" WHERE collection = $1 AND data->>$2 = ANY($3) AND data->>$4 IS DISTINCT FROM $5 ORDER BY created_at DESC, id DESC LIMIT $6 OFFSET $7`

	rows := sqlmock.NewRows([]string{"id", "data", "created_at", "updated_at"}).
		AddRow("m2", []byte(`{"conversationId":"c1","senderId":"u2"}`), now, now).
		AddRow("m1", []byte(`{"conversationId":"c1","senderId":"u2"}`), now.Add(-time.Second), now)

	mock.ExpectQuery(regexp.QuoteMeta(want)).
		WithArgs(Messages, "conversationId", []string{"c1"}, "senderId", "u1", 50, 0).
		WillReturnRows(rows)

	q := NewQuery(Equal("conversationId", "c1"), NotEqual("senderId", "u1")).Desc(FieldCreatedAt).Page(50, 0)
	docs, err := st.List(context.Background(), Messages, q)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "m2" {
		t.Fatalf("unexpected docs: %+v", docs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresStore_CountIsNull(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t, time.Now().UTC())

	want := `SELECT count(*) FROM "hdl_test"."documents" WHERE collection = $1 AND (data->$2 IS NULL OR jsonb_typeof(data->$2) = 'null')`
	mock.ExpectQuery(regexp.QuoteMeta(want)).
		WithArgs(Posts, "groupId").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := st.Count(context.Background(), Posts, NewQuery(IsNull("groupId")))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresStore_DeleteNotFound(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t, time.Now().UTC())

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "hdl_test"."documents"`)).
		WithArgs(Follows, "f1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := st.Delete(context.Background(), Follows, "f1"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresStore_AddToSet(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	st, mock := newMockStore(t, now)

	rows := sqlmock.NewRows([]string{"id", "data", "created_at", "updated_at"}).
		AddRow("m1", []byte(`{"senderId":"u1","readBy":["u1","u2","u3"]}`), now.Add(-time.Minute), now)

	mock.ExpectQuery(regexp.QuoteMeta(`SET data = jsonb_set(data, ARRAY[$3::text],`)).
		WithArgs(Messages, "m1", "readBy", []byte(`["u3"]`), now).
		WillReturnRows(rows)

	doc, err := st.AddToSet(context.Background(), Messages, "m1", "readBy", "u3", "u3")
	if err != nil {
		t.Fatalf("add to set: %v", err)
	}
	if rb := doc.Strings("readBy"); len(rb) != 3 || rb[2] != "u3" {
		t.Fatalf("unexpected readBy: %v", rb)
	}

	mock.ExpectQuery(regexp.QuoteMeta(`SET data = jsonb_set(data, ARRAY[$3::text],`)).
		WithArgs(Messages, "missing", "readBy", []byte(`["u3"]`), now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "data", "created_at", "updated_at"}))

	if _, err := st.AddToSet(context.Background(), Messages, "missing", "readBy", "u3"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := st.AddToSet(context.Background(), Messages, "m1", "$id", "u3"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid field, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
