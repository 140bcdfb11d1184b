package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an infra-defined transaction handle (pgx.Tx for Postgres).
// Repositories accept NoTX for the non-transactional path and switch to
// SELECT ... FOR UPDATE when they receive a live transaction.
type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside one database transaction. fn's error
// rolls the transaction back; nil commits it.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
