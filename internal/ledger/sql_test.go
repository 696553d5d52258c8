package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
)

func openSQLite(t *testing.T) *SQLStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "ledger.db")
	s, err := OpenSQL(context.Background(), DialectSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLStore_SQLiteRoundTrip(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	created := time.Date(2026, 4, 2, 9, 15, 0, 0, time.UTC)

	rec := model.TokenUsageRecord{
		ID:               "inv-1",
		CreatedAt:        created,
		OperationType:    model.OpContactExtraction,
		Model:            "gpt-4o-mini",
		PromptTokens:     40,
		CompletionTokens: 8,
		TotalTokens:      48,
		Estimated:        true,
		ConversationID:   "conv-9",
	}
	inserted, err := s.Append(ctx, rec)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.Append(ctx, rec)
	require.NoError(t, err)
	assert.False(t, inserted)

	var got []model.TokenUsageRecord
	require.NoError(t, s.Scan(ctx, Filter{}, func(r model.TokenUsageRecord) error {
		got = append(got, r)
		return nil
	}))
	require.Len(t, got, 1)
	assert.Equal(t, rec, got[0])
}

func TestSQLStore_SQLiteLedgerAggregation(t *testing.T) {
	s := openSQLite(t)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	l := New(s, nil)
	l.now = fixedClock(start, time.Minute)
	seed(t, l)
	ctx := context.Background()

	buckets, err := l.Aggregate(ctx, Filter{
		From:       start,
		To:         start.Add(time.Hour),
		Operations: []model.OperationType{model.OpChatReply, model.OpBANTExtraction},
	}, GroupOperation)
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, "bant_extraction", buckets[0].Group)
	assert.Equal(t, int64(240), buckets[0].TotalTokens)
	assert.Equal(t, "chat_reply", buckets[1].Group)
	assert.Equal(t, int64(760), buckets[1].TotalTokens)
	assert.Equal(t, int64(2), buckets[1].Count)

	buckets, err = l.Aggregate(ctx, Filter{AgentIDs: []string{"agent-b"}}, GroupNone)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, int64(340), buckets[0].TotalTokens)
}

func TestSQLStore_SQLiteConcurrentAppends(t *testing.T) {
	s := openSQLite(t)
	l := New(s, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_, err := l.Record(ctx, usage(fmt.Sprintf("w%d-%d", w, i), 2, 1), model.OpChatReply, "", "")
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	buckets, err := l.Aggregate(ctx, Filter{}, GroupNone)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, int64(160), buckets[0].Count)
	assert.Equal(t, int64(480), buckets[0].TotalTokens)
}

func TestSQLStore_PostgresAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewSQLStore(db, DialectPostgres)
	created := time.UnixMilli(1767225600000).UTC()
	rec := model.TokenUsageRecord{
		ID: "inv-1", CreatedAt: created, OperationType: model.OpChatReply, Model: "gpt-4o",
		PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, AgentID: "agent-1",
	}

	mock.ExpectExec(regexp.QuoteMeta("VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)")).
		WithArgs("inv-1", created.UnixMilli(), "chat_reply", "gpt-4o", 10, 5, 15, 0, 0, nil, "agent-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO token_usage").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO token_usage").
		WillReturnError(errors.New("connection refused"))

	inserted, err := s.Append(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.Append(context.Background(), rec)
	require.NoError(t, err)
	assert.False(t, inserted)

	_, err = s.Append(context.Background(), rec)
	assert.ErrorContains(t, err, "connection refused")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_PostgresScanBuildsFilter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewSQLStore(db, DialectPostgres)
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	rows := sqlmock.NewRows([]string{"id", "created_at", "operation_type", "model", "prompt_tokens",
		"completion_tokens", "total_tokens", "estimated", "failed", "conversation_id", "agent_id"}).
		AddRow("inv-1", from.Add(time.Hour).UnixMilli(), "chat_reply", "gpt-4o", 10, 5, 15, 0, 1, "conv-1", nil)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE created_at >= $1 AND created_at < $2 AND operation_type IN ($3) AND model IN ($4, $5) ORDER BY created_at, id")).
		WithArgs(from.UnixMilli(), to.UnixMilli(), "chat_reply", "gpt-4o", "gpt-4o-mini").
		WillReturnRows(rows)

	var got []model.TokenUsageRecord
	err = s.Scan(context.Background(), Filter{
		From:       from,
		To:         to,
		Operations: []model.OperationType{model.OpChatReply},
		Models:     []string{"gpt-4o", "gpt-4o-mini"},
	}, func(r model.TokenUsageRecord) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Failed)
	assert.False(t, got[0].Estimated)
	assert.Equal(t, "conv-1", got[0].ConversationID)
	assert.Empty(t, got[0].AgentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRebind(t *testing.T) {
	pg := NewSQLStore(nil, DialectPostgres)
	assert.Equal(t, "a = $1 AND b IN ($2, $3)", pg.rebind("a = ? AND b IN (?, ?)"))

	lite := NewSQLStore(nil, DialectSQLite)
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}
