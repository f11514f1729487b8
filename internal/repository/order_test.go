package repository

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsDuplicateOrderNumber(t *testing.T) {
	dup := &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "transactions_order_number_key",
	}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"order number unique violation", dup, true},
		{"wrapped violation", errors.Wrap(dup, "creating transaction"), true},
		{"other unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "transactions_pkey"}, false},
		{"other pg error", &pgconn.PgError{Code: "23503"}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isDuplicateOrderNumber(tt.err))
		})
	}
}
