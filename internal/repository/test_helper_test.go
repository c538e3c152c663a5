package repository

import (
	"testing"

	"github.com/nimasrn/sms-widget-gateway/pkg/pg"
	"github.com/nimasrn/sms-widget-gateway/test/helpers"
)

func setupTestDB(t *testing.T) *pg.DB {
	return helpers.SetupTestDB(t, Entities()...)
}
