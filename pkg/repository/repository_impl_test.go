package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type meterRow struct {
	ID      int64  `gorm:"primaryKey"`
	Unit    string `gorm:"not null"`
	Reading int64  `gorm:"not null"`
}

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(&meterRow{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seed(t *testing.T, s Store[meterRow]) {
	t.Helper()
	rows := []meterRow{
		{ID: 1, Unit: "A1", Reading: 120},
		{ID: 2, Unit: "A1", Reading: 90},
		{ID: 3, Unit: "B2", Reading: 40},
	}
	for i := range rows {
		if err := s.Insert(context.Background(), &rows[i]); err != nil {
			t.Fatalf("insert %d: %v", rows[i].ID, err)
		}
	}
}

func TestStore_GetAndList(t *testing.T) {
	s := On[meterRow](openDB(t))
	ctx := context.Background()
	seed(t, s)

	row, err := s.Get(ctx, &meterRow{ID: 2})
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, int64(90), row.Reading)

	missing, err := s.Get(ctx, &meterRow{ID: 42})
	require.NoError(t, err)
	assert.Nil(t, missing)

	rows, err := s.List(ctx, &meterRow{Unit: "A1"}, WithOrder("reading ASC"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[0].ID)

	count, err := s.Count(ctx, &meterRow{Unit: "A1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestStore_Pluck(t *testing.T) {
	s := On[meterRow](openDB(t))
	seed(t, s)

	var ids []int64
	err := s.Pluck(context.Background(), "id", &ids, Where("reading > ?", 50), WithOrder("reading DESC"), WithLimit(1))
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)

	ids = nil
	err = s.Pluck(context.Background(), "id", &ids, WithOrder("id ASC"), WithLimit(0))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestStore_UpdateAndDeleteWhere(t *testing.T) {
	s := On[meterRow](openDB(t))
	ctx := context.Background()
	seed(t, s)

	_, err := s.UpdateWhere(ctx, map[string]any{"reading": 0})
	assert.ErrorIs(t, err, gorm.ErrMissingWhereClause)
	_, err = s.DeleteWhere(ctx)
	assert.ErrorIs(t, err, gorm.ErrMissingWhereClause)

	updated, err := s.UpdateWhere(ctx, map[string]any{"reading": 150}, Where("unit = ?", "A1"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	updated, err = s.UpdateWhere(ctx, map[string]any{"reading": 1}, Where("unit = ?", "Z9"))
	require.NoError(t, err)
	assert.Zero(t, updated)

	deleted, err := s.DeleteWhere(ctx, Where("reading = ?", 150))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	count, err := s.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestStore_JoinsTransaction(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		s := On[meterRow](tx)
		if err := s.Insert(ctx, &meterRow{ID: 9, Unit: "C3", Reading: 10}); err != nil {
			return err
		}
		row, err := s.Get(ctx, &meterRow{ID: 9}, ForUpdate())
		if err != nil {
			return err
		}
		require.NotNil(t, row)
		return fmt.Errorf("rollback")
	})
	require.EqualError(t, err, "rollback")

	row, err := On[meterRow](db).Get(ctx, &meterRow{ID: 9})
	require.NoError(t, err)
	assert.Nil(t, row)
}
