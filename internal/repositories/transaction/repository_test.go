package transaction

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gilbertqld/terrace/pkg/database"
	"github.com/gilbertqld/terrace/pkg/models"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile(filepath.Join("..", "..", "..", "db", "schema_v2.sql"))
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)

	return NewRepository(db, zap.NewNop())
}

func strPtr(s string) *string { return &s }

func createTransaction(t *testing.T, repo *Repository, req models.CreateTransactionRequest) *models.Transaction {
	t.Helper()
	created, err := repo.Create(context.Background(), &req)
	require.NoError(t, err)
	return created
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	created := createTransaction(t, repo, models.CreateTransactionRequest{
		TransactionType: "expense",
		Category:        strPtr("maintenance"),
		Amount:          decimal.NewFromFloat(1250.50),
		Date:            time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
	})

	assert.Positive(t, created.ID)
	assert.Equal(t, "AUD", created.Currency, "currency defaults when omitted")
	assert.True(t, created.Amount.Equal(decimal.NewFromFloat(1250.50)))

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "expense", got.TransactionType)
	require.NotNil(t, got.Category)
	assert.Equal(t, "maintenance", *got.Category)
}

func TestRepository_Create_KeepsExplicitCurrency(t *testing.T) {
	repo := newTestRepository(t)

	created := createTransaction(t, repo, models.CreateTransactionRequest{
		TransactionType: "income",
		Amount:          decimal.NewFromInt(500),
		Date:            time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Currency:        "USD",
	})
	assert.Equal(t, "USD", created.Currency)
}

func TestRepository_Get_NotFound(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.Get(context.Background(), 9999)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRepository_List(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	jan := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	createTransaction(t, repo, models.CreateTransactionRequest{
		TransactionType: "income", Amount: decimal.NewFromInt(1000), Date: jan,
	})
	createTransaction(t, repo, models.CreateTransactionRequest{
		TransactionType: "expense", Amount: decimal.NewFromInt(300), Date: feb,
	})
	createTransaction(t, repo, models.CreateTransactionRequest{
		TransactionType: "expense", Amount: decimal.NewFromInt(200), Date: mar,
	})

	t.Run("newest first with pagination", func(t *testing.T) {
		page, err := repo.List(ctx, ListFilter{}, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, 3, page.TotalCount)
		require.Len(t, page.Items, 2)
		assert.Equal(t, mar, page.Items[0].Date.UTC())

		page2, err := repo.List(ctx, ListFilter{}, 2, 2)
		require.NoError(t, err)
		assert.Len(t, page2.Items, 1)
	})

	t.Run("filter by type", func(t *testing.T) {
		page, err := repo.List(ctx, ListFilter{TransactionType: "expense"}, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, 2, page.TotalCount)
	})

	t.Run("filter by date range", func(t *testing.T) {
		page, err := repo.List(ctx, ListFilter{From: feb, To: feb}, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, page.TotalCount)
	})
}

func TestRepository_Summary(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	date := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	createTransaction(t, repo, models.CreateTransactionRequest{
		TransactionType: "income", Amount: decimal.NewFromInt(5000), Date: date,
	})
	createTransaction(t, repo, models.CreateTransactionRequest{
		TransactionType: "expense", Amount: decimal.NewFromInt(1200), Date: date,
	})
	createTransaction(t, repo, models.CreateTransactionRequest{
		TransactionType: "capex", Amount: decimal.NewFromInt(800), Date: date,
	})

	summary, err := repo.Summary(ctx, ListFilter{})
	require.NoError(t, err)
	assert.True(t, summary.TotalIncome.Equal(decimal.NewFromInt(5000)), summary.TotalIncome.String())
	assert.True(t, summary.TotalExpenses.Equal(decimal.NewFromInt(2000)), summary.TotalExpenses.String())
	assert.True(t, summary.NetCashFlow.Equal(decimal.NewFromInt(3000)), summary.NetCashFlow.String())
}

func TestRepository_CategoryTotals(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	date := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	createTransaction(t, repo, models.CreateTransactionRequest{
		TransactionType: "expense", Category: strPtr("maintenance"),
		Amount: decimal.NewFromInt(700), Date: date,
	})
	createTransaction(t, repo, models.CreateTransactionRequest{
		TransactionType: "expense", Category: strPtr("maintenance"),
		Amount: decimal.NewFromInt(300), Date: date,
	})
	createTransaction(t, repo, models.CreateTransactionRequest{
		TransactionType: "expense",
		Amount:          decimal.NewFromInt(100), Date: date,
	})
	createTransaction(t, repo, models.CreateTransactionRequest{
		TransactionType: "income", Category: strPtr("rent"),
		Amount: decimal.NewFromInt(9000), Date: date,
	})

	totals, err := repo.CategoryTotals(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, totals, 2, "income rows are excluded")
	assert.Equal(t, "maintenance", totals[0].Category)
	assert.True(t, totals[0].Total.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, "uncategorized", totals[1].Category)
}

func TestRepository_Delete(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	created := createTransaction(t, repo, models.CreateTransactionRequest{
		TransactionType: "expense", Amount: decimal.NewFromInt(10),
		Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	require.NoError(t, repo.Delete(ctx, created.ID))
	_, err := repo.Get(ctx, created.ID)
	require.Error(t, err)

	err = repo.Delete(ctx, created.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
