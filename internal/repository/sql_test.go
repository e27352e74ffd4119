package repository

import (
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
)

func TestDriverFor(t *testing.T) {
	driver, placeholder := driverFor("postgres://user:pw@localhost:5432/invoices")
	assert.Equal(t, "pgx", driver)
	assert.Equal(t, sq.PlaceholderFormat(sq.Dollar), placeholder)

	driver, placeholder = driverFor("postgresql://localhost/invoices")
	assert.Equal(t, "pgx", driver)
	assert.Equal(t, sq.PlaceholderFormat(sq.Dollar), placeholder)

	driver, placeholder = driverFor("invoices.db")
	assert.Equal(t, "sqlite", driver)
	assert.Equal(t, sq.PlaceholderFormat(sq.Question), placeholder)

	driver, _ = driverFor("file::memory:?cache=shared")
	assert.Equal(t, "sqlite", driver)
}
