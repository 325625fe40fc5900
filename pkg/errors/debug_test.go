package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpCapturesPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "earnings_order_line_id_key", TableName: "earnings"}
	err := Wrap(CodeConflict, fmt.Errorf("insert earning: %w", pgErr), "duplicate earning")

	d := Dump(err)
	assert.Equal(t, CodeConflict, d.Code)
	require.NotNil(t, d.Postgres)
	assert.Equal(t, PGFields{SQLState: "23505", Constraint: "earnings_order_line_id_key", Table: "earnings"}, *d.Postgres)
	assert.Equal(t, []string{"*errors.Error", "*fmt.wrapError", "*pgconn.PgError"}, d.Layers)

	fields := d.Fields()
	assert.Equal(t, "23505", fields["pg_code"])
	assert.NotContains(t, fields, "pg_detail", "empty postgres columns are dropped")
}

func TestDumpFallsBackToLibPQ(t *testing.T) {
	d := Dump(fmt.Errorf("tx: %w", &pq.Error{Code: "40P01", Table: "payouts"}))
	require.NotNil(t, d.Postgres)
	assert.Equal(t, "40P01", d.Postgres.SQLState)
	assert.Equal(t, "payouts", d.Postgres.Table)
	assert.False(t, d.Retryable, "untyped errors are not marked retryable")
	assert.Empty(t, d.Code)
}

func TestDumpWithoutPostgres(t *testing.T) {
	d := Dump(New(CodeConcurrentUpdate, "version moved"))
	assert.Nil(t, d.Postgres)

	fields := d.Fields()
	assert.NotContains(t, fields, "pg_code")
	assert.Equal(t, true, fields["retryable"])
}

func TestDumpCapsLayers(t *testing.T) {
	err := error(New(CodeInternal, "root"))
	for i := 0; i < maxChainDepth*2; i++ {
		err = fmt.Errorf("layer %d: %w", i, err)
	}
	assert.Len(t, Dump(err).Layers, maxChainDepth)
	assert.Zero(t, Dump(nil))
}
