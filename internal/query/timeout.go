package query

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// queryCanceled is the SQLSTATE postgres reports when statement_timeout or a
// cancel request stops a statement.
const queryCanceled = "57014"

// Query timeout steps. MaxTimeout stays below the HTTP request timeout.
const (
	BaseTimeout = 5 * time.Second
	timeoutStep = 5 * time.Second
	MaxTimeout  = 20 * time.Second
)

// Filter sizes past which a query is considered wide.
const (
	widePharmacies = 20
	wideBrandLabs  = 10
)

// TimeoutFor scales the execution window with the span in months and the size
// of the filter sets.
func TimeoutFor(months, pharmacies, brandLabs int) time.Duration {
	var d time.Duration
	switch {
	case months <= 3:
		d = BaseTimeout
	case months <= 12:
		d = BaseTimeout + timeoutStep
	case months <= 24:
		d = BaseTimeout + 2*timeoutStep
	default:
		d = MaxTimeout
	}
	if pharmacies > widePharmacies || brandLabs > wideBrandLabs {
		d += timeoutStep
	}
	if d > MaxTimeout {
		d = MaxTimeout
	}
	return d
}

// IsStatementTimeout reports whether postgres cancelled the statement itself.
func IsStatementTimeout(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == queryCanceled
}
