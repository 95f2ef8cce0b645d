package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

// CompareAndSetStatus moves row id of table from status from to status to. When
// no row matches, the current status is read back to tell an already applied
// transition apart from a conflicting one. table must be a trusted identifier.
func CompareAndSetStatus(ctx context.Context, q Querier, table string, id int64, from, to string) error {
	tag, err := q.Exec(ctx, fmt.Sprintf(`UPDATE %s SET status=$3, updated_at=NOW() WHERE id=$1 AND status=$2`, table), id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var current string
	err = q.QueryRow(ctx, fmt.Sprintf(`SELECT status FROM %s WHERE id=$1`, table), id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s %d: %w", table, id, shared.ErrNotFound)
		}
		return err
	}
	return shared.Conflict(table, id, current, to)
}
