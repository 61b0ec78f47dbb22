package repository

import "context"

// Tx is an opaque transaction handle. Infra layers type-assert it to
// their concrete executor (pgx.Tx and friends).
type Tx = any

// TransactionManager runs fn inside a storage transaction. The handle is
// forwarded to repository calls via their qx argument.
type TransactionManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
