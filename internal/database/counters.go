package database

import (
	"context"

	"github.com/google/uuid"
)

// nextOrderSequence is a single upsert-increment so sequence issuance is
// serialized by the row lock: concurrent checkouts for one business get
// distinct, monotonically increasing values. The first call for a business
// creates the counter and returns 1.
const nextOrderSequence = `
INSERT INTO counters (business_id, sequence_value)
VALUES ($1, 1)
ON CONFLICT (business_id)
DO UPDATE SET sequence_value = counters.sequence_value + 1
RETURNING sequence_value
`

func (q *Queries) NextOrderSequence(ctx context.Context, businessID uuid.UUID) (int64, error) {
	var seq int64
	err := q.db.QueryRow(ctx, nextOrderSequence, businessID).Scan(&seq)
	return seq, err
}
