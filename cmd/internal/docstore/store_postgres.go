package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"huddle/cmd/internal/ids"

	"github.com/jackc/pgx/v5"
)

// PostgresStore keeps every collection in one jsonb table keyed by (collection, id).
//
// Ownership model:
//   - PostgresStore does NOT own the *sql.DB. The caller must close it.
//   - Close() is therefore a no-op.
//
// Filters compare the text form of top-level fields (data->>'field'), which matches
// the scalar rendering the in-memory store uses.
type PostgresStore struct {
	db     *sql.DB
	schema string
	now    func() time.Time
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "huddle").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("docstore: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("docstore: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// WithPostgresClock overrides the clock used for document timestamps.
func WithPostgresClock(now func() time.Time) PostgresOption {
	return func(s *PostgresStore) error {
		if now == nil {
			return errors.New("docstore: nil clock")
		}
		s.now = now
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Store.
func NewPostgresStore(db *sql.DB, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		db:     db,
		schema: "huddle",
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.db == nil {
		return nil, errors.New("docstore: nil db")
	}
	return st, nil
}

// Close is a no-op because the database handle is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// Migrate creates the schema, table and indexes when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	table := s.table()
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS ` + pgx.Identifier{s.schema}.Sanitize(),
		`CREATE TABLE IF NOT EXISTS ` + table + ` (
		     collection text NOT NULL,
		     id text NOT NULL,
		     data jsonb NOT NULL DEFAULT '{}'::jsonb,
		     created_at timestamptz NOT NULL,
		     updated_at timestamptz NOT NULL,
		     PRIMARY KEY (collection, id)
		 )`,
		`CREATE INDEX IF NOT EXISTS documents_created_idx ON ` + table + ` (collection, created_at DESC, id DESC)`,
		`CREATE INDEX IF NOT EXISTS documents_data_idx ON ` + table + ` USING gin (data jsonb_path_ops)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Create inserts a new document under a fresh ULID.
func (s *PostgresStore) Create(ctx context.Context, collection string, data map[string]any) (Document, error) {
	if strings.TrimSpace(collection) == "" {
		return Document{}, invalid("missing collection")
	}
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	now := s.now()
	id, err := ids.NewULID(now)
	if err != nil {
		return Document{}, err
	}
	data = cloneData(data)
	raw, err := json.Marshal(data)
	if err != nil {
		return Document{}, invalid(err.Error())
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO `+s.table()+` (collection, id, data, created_at, updated_at)
		 VALUES ($1, $2, $3::jsonb, $4, $4)`,
		collection, id, raw, now,
	); err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}

	return Document{ID: id, Collection: collection, CreatedAt: now, UpdatedAt: now, Data: data}, nil
}

// Get returns one document.
func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, data, created_at, updated_at FROM `+s.table()+`
		  WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	doc, err := scanDocument(row, collection)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, NotFoundError{Collection: collection, ID: id}
	}
	return doc, err
}

// Update merges patch into the stored jsonb (top-level keys) and bumps updated_at.
func (s *PostgresStore) Update(ctx context.Context, collection, id string, patch map[string]any) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	raw, err := json.Marshal(cloneData(patch))
	if err != nil {
		return Document{}, invalid(err.Error())
	}

	row := s.db.QueryRowContext(ctx,
		`UPDATE `+s.table()+`
		    SET data = data || $3::jsonb,
		        updated_at = $4
		  WHERE collection = $1 AND id = $2
		RETURNING id, data, created_at, updated_at`,
		collection, id, raw, s.now(),
	)
	doc, err := scanDocument(row, collection)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, NotFoundError{Collection: collection, ID: id}
	}
	return doc, err
}

// AddToSet appends the values missing from a jsonb string array in a single UPDATE.
// The row lock makes concurrent calls on one document see each other's values.
func (s *PostgresStore) AddToSet(ctx context.Context, collection, id, field string, values ...string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	values, err := setValues(field, values)
	if err != nil {
		return Document{}, err
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return Document{}, invalid(err.Error())
	}

	row := s.db.QueryRowContext(ctx,
		`UPDATE `+s.table()+`
		    SET data = jsonb_set(data, ARRAY[$3::text],
		            COALESCE(CASE WHEN jsonb_typeof(data->$3) = 'array' THEN data->$3 END, '[]'::jsonb)
		            || COALESCE((SELECT jsonb_agg(v.val)
		                           FROM jsonb_array_elements_text($4::jsonb) AS v(val)
		                          WHERE NOT COALESCE(data->$3, '[]'::jsonb) @> jsonb_build_array(v.val)), '[]'::jsonb),
		            true),
		        updated_at = $5
		  WHERE collection = $1 AND id = $2
		RETURNING id, data, created_at, updated_at`,
		collection, id, field, raw, s.now(),
	)
	doc, err := scanDocument(row, collection)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, NotFoundError{Collection: collection, ID: id}
	}
	return doc, err
}

// Delete removes one document.
func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.table()+` WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return NotFoundError{Collection: collection, ID: id}
	}
	return nil
}

// List returns the requested page of matching documents.
func (s *PostgresStore) List(ctx context.Context, collection string, q Query) ([]Document, error) {
	q, err := q.normalized()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := newSQLBuilder(collection)
	where := b.where(q.Filters)
	order := b.orderBy(q)
	limit := b.arg(q.Limit)
	offset := b.arg(q.Offset)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data, created_at, updated_at FROM `+s.table()+
			` WHERE `+where+` ORDER BY `+order+` LIMIT `+limit+` OFFSET `+offset,
		b.args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Document, 0, q.Limit)
	for rows.Next() {
		doc, err := scanDocument(rows, collection)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of matching documents.
func (s *PostgresStore) Count(ctx context.Context, collection string, q Query) (int, error) {
	q, err := q.normalized()
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b := newSQLBuilder(collection)
	where := b.where(q.Filters)

	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM `+s.table()+` WHERE `+where,
		b.args...,
	).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "documents"}.Sanitize()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(r rowScanner, collection string) (Document, error) {
	var (
		doc Document
		raw []byte
	)
	if err := r.Scan(&doc.ID, &raw, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return Document{}, err
	}
	doc.Collection = collection
	doc.Data = map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &doc.Data); err != nil {
			return Document{}, fmt.Errorf("decode document %s/%s: %w", collection, doc.ID, err)
		}
	}
	doc.CreatedAt = doc.CreatedAt.UTC()
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return doc, nil
}

// sqlBuilder accumulates positional args. Field names always travel as args, never as SQL text.
type sqlBuilder struct {
	args []any
}

func newSQLBuilder(collection string) *sqlBuilder {
	return &sqlBuilder{args: []any{collection}}
}

func (b *sqlBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *sqlBuilder) where(filters []Filter) string {
	parts := []string{"collection = $1"}
	for _, f := range filters {
		col := b.column(f.Field)
		switch f.Op {
		case OpEqual:
			vals := make([]string, 0, len(f.Values))
			for _, v := range f.Values {
				if s, ok := scalarKey(v); ok {
					vals = append(vals, s)
				}
			}
			parts = append(parts, col+" = ANY("+b.arg(vals)+")")
		case OpNotEqual:
			var v any
			if s, ok := scalarKey(f.Values[0]); ok {
				v = s
			}
			parts = append(parts, col+" IS DISTINCT FROM "+b.arg(v))
		case OpIsNull:
			if meta := metaColumn(f.Field); meta != "" {
				parts = append(parts, meta+" IS NULL")
				continue
			}
			key := b.arg(f.Field)
			parts = append(parts, "(data->"+key+" IS NULL OR jsonb_typeof(data->"+key+") = 'null')")
		}
	}
	return strings.Join(parts, " AND ")
}

func (b *sqlBuilder) orderBy(q Query) string {
	dir := " ASC"
	if q.OrderDesc {
		dir = " DESC"
	}
	field := q.OrderBy
	if field == "" {
		field = FieldID
	}
	col := metaColumn(field)
	if col == "" {
		col = "data->>" + b.arg(field)
	}
	if col == "id" {
		return "id" + dir
	}
	return col + dir + ", id" + dir
}

// column renders the text form of a field for comparisons.
func (b *sqlBuilder) column(field string) string {
	switch field {
	case FieldID:
		return "id"
	case FieldCollection:
		return "collection"
	case FieldCreatedAt, FieldUpdatedAt:
		// Compared through the same fixed-width layout used in documents.
		return "to_char(" + metaColumn(field) + " AT TIME ZONE 'UTC', 'YYYY-MM-DD\"T\"HH24:MI:SS.US000\"Z\"')"
	default:
		return "data->>" + b.arg(field)
	}
}

func metaColumn(field string) string {
	switch field {
	case FieldID:
		return "id"
	case FieldCollection:
		return "collection"
	case FieldCreatedAt:
		return "created_at"
	case FieldUpdatedAt:
		return "updated_at"
	default:
		return ""
	}
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}
