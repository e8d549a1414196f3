package migrations_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-grounds/internal/closure"
	"ms-grounds/internal/models"
)

const initSchemaPath = "../../../migrations/000001_init_schema.up.sql"

// migrationColumns pulls the column names out of a CREATE TABLE block in the
// init migration.
func migrationColumns(t *testing.T, table string) []string {
	t.Helper()
	ddl, err := os.ReadFile(initSchemaPath)
	require.NoError(t, err)

	re := regexp.MustCompile(`(?s)CREATE TABLE IF NOT EXISTS ` + table + `\s*\((.*?)\n\);`)
	match := re.FindStringSubmatch(string(ddl))
	require.NotNil(t, match, "no CREATE TABLE block for %s", table)

	var cols []string
	for _, line := range strings.Split(match[1], "\n") {
		line = strings.TrimSuffix(strings.TrimSpace(line), ",")
		if line == "" {
			continue
		}
		cols = append(cols, strings.Fields(line)[0])
	}
	return cols
}

// modelColumns reads the bun column names off a persisted model struct.
func modelColumns(t *testing.T, model interface{}) []string {
	t.Helper()
	typ := reflect.TypeOf(model)
	var cols []string
	for i := 0; i < typ.NumField(); i++ {
		tag := typ.Field(i).Tag.Get("bun")
		if tag == "" || strings.HasPrefix(tag, "table:") {
			continue
		}
		cols = append(cols, strings.Split(tag, ",")[0])
	}
	return cols
}

// Every column the models persist must exist in the migrated schema,
// otherwise inserts that pass against model-created test tables fail in
// production with column-not-found errors.
func TestInitSchemaCoversModelColumns(t *testing.T) {
	assert.Subset(t, migrationColumns(t, "reservations"), modelColumns(t, models.Reservation{}))
	assert.Subset(t, migrationColumns(t, "closure_windows"), modelColumns(t, models.ClosureWindow{}))

	// The payment store writes raw SQL; its INSERT column list is fixed.
	assert.Subset(t, migrationColumns(t, "payments"), []string{
		"payment_id", "reservation_id", "method", "external_transaction_id",
		"amount", "status", "created_date",
	})
}

// createFromMigration builds the table with exactly the migration's columns
// so inserts exercise the migrated shape, not the model-derived one.
func createFromMigration(t *testing.T, db *bun.DB, table string) {
	t.Helper()
	cols := migrationColumns(t, table)
	_, err := db.Exec(fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(cols, ", ")))
	require.NoError(t, err)
}

func newSchemaDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestClosureInsertAgainstMigratedColumns(t *testing.T) {
	db := newSchemaDB(t)
	createFromMigration(t, db, "closure_windows")
	registry := closure.NewRegistry(db)
	ctx := context.Background()

	window, err := registry.AddWindow(ctx, models.ClosureRequest{
		GroundID: "ground-1",
		StartsAt: time.Date(2026, 9, 10, 8, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2026, 9, 10, 12, 0, 0, 0, time.UTC),
		Reason:   "resurfacing",
	})
	require.NoError(t, err)

	closed, err := registry.IsClosed(ctx, "ground-1", "2026-09-10", "09:00", "10:00")
	require.NoError(t, err)
	assert.True(t, closed)

	require.NoError(t, registry.RemoveWindow(ctx, window.ClosureID))
}

func TestReservationInsertAgainstMigratedColumns(t *testing.T) {
	db := newSchemaDB(t)
	createFromMigration(t, db, "reservations")
	ctx := context.Background()

	res := &models.Reservation{
		ReservationID: "res-1",
		GroundID:      "ground-1",
		UserID:        "user-1",
		Date:          "2026-09-10",
		StartTime:     "09:00",
		EndTime:       "10:00",
		Status:        models.ReservationPending,
		TotalPrice:    1500,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	_, err := db.NewInsert().Model(res).Exec(ctx)
	require.NoError(t, err)

	var got models.Reservation
	require.NoError(t, db.NewSelect().Model(&got).Where("reservation_id = ?", "res-1").Scan(ctx))
	assert.Equal(t, "ground-1", got.GroundID)
}
