// Package sandbox runs caller-supplied read-only queries under strict
// syntactic and wall-clock limits. It exists so a trusted local tool can
// run arbitrary analytical queries without blocking the single-writer
// store indefinitely or smuggling schema mutations through a text field.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/jmoiron/sqlx"
)

// DefaultBudget is the wall-clock limit for one sandboxed query.
const DefaultBudget = 250 * time.Millisecond

// Outcome classifies how a sandboxed query ended. The three failure
// states are distinct so callers can report accurate diagnostics.
type Outcome int

const (
	// OutcomeOK means the query ran to completion within budget.
	OutcomeOK Outcome = iota
	// OutcomeInvalid means validation rejected the input before any
	// store access.
	OutcomeInvalid
	// OutcomeTimeout means the watchdog interrupted the query.
	OutcomeTimeout
	// OutcomeError means the store reported a genuine query error
	// (syntax, unknown column, and so on).
	OutcomeError
)

// String returns a short label for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Result is what the executor surfaces to the caller: the first column
// of every result row on success, or the outcome and diagnostic detail
// on failure.
type Result struct {
	Outcome Outcome
	Rows    []string
	Detail  string
}

// Executor validates and runs read-only queries against the store.
type Executor struct {
	db     *sqlx.DB
	budget time.Duration
}

// New creates an executor with the given wall-clock budget. A zero
// budget falls back to DefaultBudget.
func New(db *sqlx.DB, budget time.Duration) *Executor {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Executor{db: db, budget: budget}
}

// Validate checks query text without touching the store: it must be
// non-empty, begin with SELECT, and contain a single statement. A lone
// trailing semicolon is allowed; a second statement after it is not.
func Validate(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fmt.Errorf("query is empty")
	}
	if !strings.HasPrefix(strings.ToLower(trimmed), "select") {
		return fmt.Errorf("only SELECT queries are allowed")
	}

	// Count statement separators outside single-quoted literals.
	// Inside a literal, a doubled quote is an escaped quote, not a
	// terminator.
	inLiteral := false
	separatorAt := -1
	runes := []rune(trimmed)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		if inLiteral {
			if ch == '\'' {
				if i+1 < len(runes) && runes[i+1] == '\'' {
					i++ // escaped quote
					continue
				}
				inLiteral = false
			}
			continue
		}
		switch ch {
		case '\'':
			inLiteral = true
		case ';':
			if separatorAt >= 0 {
				return fmt.Errorf("multiple statements are not allowed")
			}
			separatorAt = i
		}
	}

	if separatorAt >= 0 {
		for _, ch := range runes[separatorAt+1:] {
			if !unicode.IsSpace(ch) {
				return fmt.Errorf("multiple statements are not allowed")
			}
		}
	}

	return nil
}

// Run validates text and executes it with the wall-clock budget,
// returning the first column of each result row. The query and a
// watchdog timer race: whichever finishes first wins, and a query
// failure caused by the watchdog's interrupt is reported as a timeout,
// not a query error.
func (e *Executor) Run(ctx context.Context, text string) Result {
	if err := Validate(text); err != nil {
		return Result{Outcome: OutcomeInvalid, Detail: err.Error()}
	}

	queryCtx, cancel := context.WithTimeout(ctx, e.budget)
	defer cancel()

	type answer struct {
		rows []string
		err  error
	}
	done := make(chan answer, 1)

	go func() {
		rows, err := e.collect(queryCtx, text)
		done <- answer{rows: rows, err: err}
	}()

	select {
	case a := <-done:
		if a.err != nil {
			if interrupted(a.err) || queryCtx.Err() != nil {
				return Result{Outcome: OutcomeTimeout,
					Detail: fmt.Sprintf("query exceeded %s budget", e.budget)}
			}
			return Result{Outcome: OutcomeError, Detail: a.err.Error()}
		}
		return Result{Outcome: OutcomeOK, Rows: a.rows}
	case <-queryCtx.Done():
		// The watchdog won. Cancellation interrupts the in-flight
		// statement on the read connection; the query goroutine drains
		// into the buffered channel and exits on its own.
		return Result{Outcome: OutcomeTimeout,
			Detail: fmt.Sprintf("query exceeded %s budget", e.budget)}
	}
}

// collect opens a read transaction, runs the query, and gathers the
// first column of every row as a string.
func (e *Executor) collect(ctx context.Context, text string) ([]string, error) {
	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	// Read-only work: the transaction is simply abandoned.
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, text)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []string
	for rows.Next() {
		dest := make([]interface{}, len(cols))
		var first interface{}
		dest[0] = &first
		for i := 1; i < len(dest); i++ {
			var discard interface{}
			dest[i] = &discard
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, stringify(first))
	}
	return out, rows.Err()
}

// interrupted reports whether the error was caused by the watchdog's
// cooperative interrupt rather than a genuine query failure.
func interrupted(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	return strings.Contains(err.Error(), "interrupted")
}

// stringify renders a scanned first-column value.
func stringify(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", x)
	}
}
