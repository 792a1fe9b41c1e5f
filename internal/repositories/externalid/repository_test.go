package externalid

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/models"
)

type fakeResult struct {
	rows int64
	err  error
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, errors.New("not supported") }
func (r fakeResult) RowsAffected() (int64, error) { return r.rows, r.err }

type fakeQuerier struct {
	result  sql.Result
	execErr error
	gets    int
	getErr  error
}

func (q *fakeQuerier) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return q.result, q.execErr
}

func (q *fakeQuerier) GetContext(context.Context, any, string, ...any) error {
	q.gets++
	return q.getErr
}

func (q *fakeQuerier) SelectContext(context.Context, any, string, ...any) error {
	return nil
}

func (q *fakeQuerier) QueryxContext(context.Context, string, ...any) (*sqlx.Rows, error) {
	return nil, errors.New("not supported")
}

// fakeDB serves every query from one querier. Methods not overridden panic.
type fakeDB struct {
	database.DB
	q *fakeQuerier
}

func (d fakeDB) Conn(context.Context) database.Querier { return d.q }

func TestUpsertAlias_WriteResult(t *testing.T) {
	tests := []struct {
		name     string
		q        *fakeQuerier
		wantErr  error
		wantGets int
	}{
		{
			name: "row written",
			q:    &fakeQuerier{result: fakeResult{rows: 1}},
		},
		{
			name:    "exec failure",
			q:       &fakeQuerier{execErr: errors.New("connection reset")},
			wantErr: models.ErrStoreUnavailable,
		},
		{
			name:    "rows affected unreadable",
			q:       &fakeQuerier{result: fakeResult{err: errors.New("driver: bad connection")}},
			wantErr: models.ErrStoreUnavailable,
		},
		{
			name:     "guarded write skipped and row gone",
			q:        &fakeQuerier{result: fakeResult{}, getErr: sql.ErrNoRows},
			wantErr:  models.ErrStoreUnavailable,
			wantGets: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewRepository(fakeDB{q: tt.q}, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))

			err := repo.UpsertAlias(context.Background(), models.ExternalIdentifier{
				Provider:     "gotsport",
				ExternalID:   "1",
				TeamID:       "t1",
				Confidence:   1,
				ReviewStatus: models.ReviewStatusApproved,
				MatchMethod:  models.MatchMethodDirect,
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantGets, tt.q.gets)
		})
	}
}
