package challans

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/billbook-app/billbook/internal/platform/httpx"
)

func TestMapPgErrorUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           uniqueViolation,
		ConstraintName: "challans_business_id_year_key_challan_no_key",
	}

	mapped := mapPgError(fmt.Errorf("exec insert: %w", pgErr))
	assert.ErrorIs(t, mapped, httpx.ErrDuplicate)
	assert.Contains(t, mapped.Error(), "challans_business_id_year_key_challan_no_key")
}

func TestMapPgErrorPassesThroughOtherErrors(t *testing.T) {
	// Non-unique driver errors and plain errors keep their identity.
	fkErr := &pgconn.PgError{Code: "23503", ConstraintName: "challans_party_id_fkey"}
	assert.NotErrorIs(t, mapPgError(fkErr), httpx.ErrDuplicate)

	plain := errors.New("connection reset")
	assert.Equal(t, plain, mapPgError(plain))

	assert.NoError(t, mapPgError(nil))
}
