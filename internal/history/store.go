// Package history keeps an append-only log of predictions and batch runs.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("prediction not found")

type Source string

const (
	SourceSingle Source = "single"
	SourceBatch  Source = "batch"
)

// Record is one logged prediction attempt. Prediction is nil when routing,
// computation or the model failed; Error then says why.
type Record struct {
	ID         string          `json:"id"`
	Source     Source          `json:"source"`
	BatchID    string          `json:"batch_id,omitempty"`
	RowIndex   int             `json:"row_index"`
	Material   string          `json:"material"`
	Group      string          `json:"group,omitempty"`
	Confidence string          `json:"confidence,omitempty"`
	Prediction *float64        `json:"prediction"`
	Warnings   []string        `json:"warnings"`
	Inputs     json.RawMessage `json:"inputs"`
	Error      string          `json:"error,omitempty"`
	Subject    string          `json:"subject,omitempty"` // authenticated caller, empty without auth
	CreatedAt  time.Time       `json:"created_at"`
}

// Batch summarizes one CSV run.
type Batch struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Total     int       `json:"total"`
	Predicted int       `json:"predicted"`
	Failed    int       `json:"failed"`
	CreatedAt time.Time `json:"created_at"`
}

type ListOpts struct {
	Source Source // optional filter
	Group  string // optional filter
	Limit  int
	Offset int
}

type SQLStore struct{ db *sql.DB }

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) Append(ctx context.Context, r Record) error {
	return appendRecord(ctx, s.db, r)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func appendRecord(ctx context.Context, ex execer, r Record) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.Warnings == nil {
		r.Warnings = []string{}
	}
	wj, err := json.Marshal(r.Warnings)
	if err != nil {
		return err
	}
	inputs := string(r.Inputs)
	if inputs == "" {
		inputs = "{}"
	}
	var pred sql.NullFloat64
	if r.Prediction != nil {
		pred = sql.NullFloat64{Float64: *r.Prediction, Valid: true}
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO predictions (id,source,batch_id,row_index,material,grp,confidence,prediction,warnings_json,inputs_json,error,subject,created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		r.ID, string(r.Source), r.BatchID, r.RowIndex, r.Material, r.Group, r.Confidence,
		pred, string(wj), inputs, r.Error, r.Subject, r.CreatedAt.UnixMilli())
	return err
}

// AppendBatch stores a batch summary and its rows in one transaction.
func (s *SQLStore) AppendBatch(ctx context.Context, b Batch, rows []Record) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO batches (id,filename,total,predicted,failed,created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		b.ID, b.Filename, b.Total, b.Predicted, b.Failed, b.CreatedAt.UnixMilli()); err != nil {
		return err
	}
	for _, r := range rows {
		r.Source = SourceBatch
		r.BatchID = b.ID
		if r.CreatedAt.IsZero() {
			r.CreatedAt = b.CreatedAt
		}
		if err = appendRecord(ctx, tx, r); err != nil {
			return err
		}
	}
	return nil
}

const selectRecord = `SELECT id,source,batch_id,row_index,material,grp,confidence,prediction,warnings_json,inputs_json,error,subject,created_at FROM predictions`

func (s *SQLStore) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, selectRecord+` WHERE id=$1`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return r, err
}

// List returns records newest first.
func (s *SQLStore) List(ctx context.Context, opts ListOpts) ([]Record, error) {
	switch {
	case opts.Limit <= 0:
		opts.Limit = 50
	case opts.Limit > 500:
		opts.Limit = 500
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	q := selectRecord + ` WHERE ($1 = '' OR source = $1) AND ($2 = '' OR grp = $2)
		ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4`
	rows, err := s.db.QueryContext(ctx, q, string(opts.Source), opts.Group, opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetBatch(ctx context.Context, id string) (Batch, error) {
	var b Batch
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id,filename,total,predicted,failed,created_at FROM batches WHERE id=$1`, id).
		Scan(&b.ID, &b.Filename, &b.Total, &b.Predicted, &b.Failed, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Batch{}, ErrNotFound
	}
	if err != nil {
		return Batch{}, err
	}
	b.CreatedAt = time.UnixMilli(created)
	return b, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var (
		r       Record
		src     string
		pred    sql.NullFloat64
		wj      string
		inputs  string
		created int64
	)
	if err := sc.Scan(&r.ID, &src, &r.BatchID, &r.RowIndex, &r.Material, &r.Group, &r.Confidence,
		&pred, &wj, &inputs, &r.Error, &r.Subject, &created); err != nil {
		return Record{}, err
	}
	r.Source = Source(src)
	if pred.Valid {
		v := pred.Float64
		r.Prediction = &v
	}
	if err := json.Unmarshal([]byte(wj), &r.Warnings); err != nil {
		return Record{}, err
	}
	r.Inputs = json.RawMessage(inputs)
	r.CreatedAt = time.UnixMilli(created)
	return r, nil
}
