package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zendegi/directgtd/internal/model"
	"github.com/zendegi/directgtd/tests/testutil"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		query string
		ok    bool
	}{
		{"plain select", "SELECT id FROM items", true},
		{"lowercase select", "select count(*) from tags", true},
		{"leading whitespace", "  \n\tSELECT 1", true},
		{"trailing semicolon", "SELECT id FROM items;", true},
		{"trailing semicolon and whitespace", "SELECT id FROM items; \n", true},
		{"semicolon inside literal", "SELECT id FROM items WHERE title = 'a;b'", true},
		{"escaped quote in literal", "SELECT 'it''s; fine'", true},
		{"empty", "", false},
		{"blank", "   \n ", false},
		{"delete", "DELETE FROM items", false},
		{"update", "UPDATE items SET title = 'x'", false},
		{"insert", "INSERT INTO items (id) VALUES ('x')", false},
		{"drop", "DROP TABLE items", false},
		{"pragma", "PRAGMA foreign_keys = OFF", false},
		{"cte", "WITH t AS (SELECT 1) SELECT * FROM t", false},
		{"two statements", "SELECT 1; SELECT 2", false},
		{"piggybacked write", "SELECT 1; DELETE FROM items", false},
		{"double separator", "SELECT 1;; ", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.query)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestRunReturnsRows(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	for _, title := range []string{"alpha", "beta", "gamma"} {
		title := title
		_, err := s.CreateItem(ctx, model.Item{Title: &title})
		require.NoError(t, err)
	}

	exec := New(s.DB(), 0)
	res := exec.Run(ctx, "SELECT title FROM items WHERE deleted_at IS NULL ORDER BY title")
	require.Equal(t, OutcomeOK, res.Outcome, res.Detail)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, res.Rows)
}

func TestRunInvalidNeverTouchesStore(t *testing.T) {
	s := testutil.NewTestStore(t)
	exec := New(s.DB(), 0)

	res := exec.Run(context.Background(), "DELETE FROM items")
	assert.Equal(t, OutcomeInvalid, res.Outcome)
	assert.Empty(t, res.Rows)
	assert.NotEmpty(t, res.Detail)
}

func TestRunReportsQueryErrors(t *testing.T) {
	s := testutil.NewTestStore(t)
	exec := New(s.DB(), 0)

	res := exec.Run(context.Background(), "SELECT nonsense FROM no_such_table")
	assert.Equal(t, OutcomeError, res.Outcome)
	assert.NotEmpty(t, res.Detail)
}

func TestRunTimeout(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	for i := 0; i < 40; i++ {
		title := "filler"
		_, err := s.CreateItem(ctx, model.Item{Title: &title})
		require.NoError(t, err)
	}

	// A six-way cross join over 40 rows is billions of result tuples,
	// far past any reasonable budget.
	exec := New(s.DB(), 50*time.Millisecond)
	start := time.Now()
	res := exec.Run(ctx,
		"SELECT count(*) FROM items a, items b, items c, items d, items e, items f")
	assert.Equal(t, OutcomeTimeout, res.Outcome, res.Detail)
	assert.Less(t, time.Since(start), 5*time.Second,
		"the watchdog must interrupt the query, not wait it out")
}

func TestRunRecoversAfterTimeout(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	for i := 0; i < 40; i++ {
		title := "filler"
		_, err := s.CreateItem(ctx, model.Item{Title: &title})
		require.NoError(t, err)
	}

	exec := New(s.DB(), 50*time.Millisecond)
	res := exec.Run(ctx,
		"SELECT count(*) FROM items a, items b, items c, items d, items e, items f")
	require.Equal(t, OutcomeTimeout, res.Outcome)

	// The store stays usable for the next query.
	res = exec.Run(ctx, "SELECT count(*) FROM items")
	require.Equal(t, OutcomeOK, res.Outcome, res.Detail)
	assert.Equal(t, []string{"40"}, res.Rows)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "ok", OutcomeOK.String())
	assert.Equal(t, "invalid", OutcomeInvalid.String())
	assert.Equal(t, "timeout", OutcomeTimeout.String())
	assert.Equal(t, "error", OutcomeError.String())
}
