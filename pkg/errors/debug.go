package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// maxChainDepth caps how many wrapped layers end up in a log line.
const maxChainDepth = 8

// PGFields is the subset of a postgres error worth logging.
type PGFields struct {
	SQLState   string `json:"sqlstate"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// ErrorDump flattens an error chain for structured logs. It is never sent to
// clients.
type ErrorDump struct {
	TopMessage string    `json:"top_message"`
	Code       Code      `json:"code,omitempty"`
	Retryable  bool      `json:"retryable"`
	Layers     []string  `json:"layers,omitempty"`
	Postgres   *PGFields `json:"postgres,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error(), Retryable: Retryable(err)}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	// Each wrapper already prints its cause, so only the types are kept.
	for e := err; e != nil && len(d.Layers) < maxChainDepth; e = errors.Unwrap(e) {
		d.Layers = append(d.Layers, fmt.Sprintf("%T", e))
	}
	d.Postgres = postgresFields(err)
	return d
}

func postgresFields(err error) *PGFields {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &PGFields{pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.Detail}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &PGFields{string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Detail}
	}
	return nil
}

// Fields renders the dump as log fields.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":        d.TopMessage,
		"error_code":   d.Code,
		"error_layers": d.Layers,
		"retryable":    d.Retryable,
	}
	if pg := d.Postgres; pg != nil {
		fields["pg_code"] = pg.SQLState
		if pg.Constraint != "" {
			fields["pg_constraint"] = pg.Constraint
		}
		if pg.Table != "" {
			fields["pg_table"] = pg.Table
		}
		if pg.Detail != "" {
			fields["pg_detail"] = pg.Detail
		}
	}
	return fields
}
