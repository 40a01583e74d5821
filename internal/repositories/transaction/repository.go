// Package transaction handles financial transaction persistence
package transaction

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/huandu/go-sqlbuilder"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gilbertqld/terrace/pkg/database"
	"github.com/gilbertqld/terrace/pkg/models"
	"github.com/gilbertqld/terrace/pkg/tracing"
)

const defaultCurrency = "AUD"

var transactionColumns = []string{
	"id", "transaction_type", "category", "amount", "date", "currency",
	"asset_id", "project_id", "description", "created_at",
}

// ListFilter narrows List results. Zero values mean "no filter".
type ListFilter struct {
	TransactionType string
	AssetID         int64
	ProjectID       int64
	From            time.Time
	To              time.Time
}

// Repository handles transaction persistence
type Repository struct {
	db     database.DB
	logger *zap.Logger
}

// NewRepository creates a new transaction repository
func NewRepository(db database.DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new transaction
func (r *Repository) Create(ctx context.Context, req *models.CreateTransactionRequest) (*models.Transaction, error) {
	ctx, span := tracing.StartSpan(ctx, "transaction.Repository.Create")
	defer span.End()

	currency := req.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	sb := sqlbuilder.SQLite.NewInsertBuilder()
	sb.InsertInto("transactions")
	sb.Cols("transaction_type", "category", "amount", "date", "currency",
		"asset_id", "project_id", "description", "created_at")
	sb.Values(req.TransactionType, req.Category, req.Amount, req.Date, currency,
		req.AssetID, req.ProjectID, req.Description, time.Now().UTC())

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to create transaction", zap.Error(err))
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create transaction")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create transaction")
	}

	r.logger.Info("Created transaction",
		zap.Int64("id", id), zap.String("transaction_type", req.TransactionType))
	return r.Get(ctx, id)
}

// Get retrieves a transaction by ID
func (r *Repository) Get(ctx context.Context, id int64) (*models.Transaction, error) {
	ctx, span := tracing.StartSpan(ctx, "transaction.Repository.Get")
	defer span.End()

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(transactionColumns...)
	sb.From("transactions")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var transaction models.Transaction
	if err := r.db.GetContext(ctx, &transaction, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "transaction %d not found", id)
		}
		r.logger.Error("Failed to get transaction", zap.Int64("id", id), zap.Error(err))
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get transaction")
	}

	return &transaction, nil
}

// List retrieves a page of transactions, newest first
func (r *Repository) List(ctx context.Context, filter ListFilter, page, pageSize int) (*models.TransactionListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "transaction.Repository.List")
	defer span.End()

	applyFilter := func(sb *sqlbuilder.SelectBuilder) {
		if filter.TransactionType != "" {
			sb.Where(sb.Equal("transaction_type", filter.TransactionType))
		}
		if filter.AssetID != 0 {
			sb.Where(sb.Equal("asset_id", filter.AssetID))
		}
		if filter.ProjectID != 0 {
			sb.Where(sb.Equal("project_id", filter.ProjectID))
		}
		if !filter.From.IsZero() {
			sb.Where(sb.GreaterEqualThan("date", filter.From))
		}
		if !filter.To.IsZero() {
			sb.Where(sb.LessEqualThan("date", filter.To))
		}
	}

	countBuilder := sqlbuilder.SQLite.NewSelectBuilder()
	countBuilder.Select("COUNT(*)")
	countBuilder.From("transactions")
	applyFilter(countBuilder)

	query, args := countBuilder.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		r.logger.Error("Failed to count transactions", zap.Error(err))
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list transactions")
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(transactionColumns...)
	sb.From("transactions")
	applyFilter(sb)
	sb.OrderBy("date DESC", "id DESC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args = sb.Build()
	items := []models.Transaction{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.Error("Failed to list transactions", zap.Error(err))
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list transactions")
	}

	return &models.TransactionListResponse{
		Items:      items,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// Delete removes a transaction
func (r *Repository) Delete(ctx context.Context, id int64) error {
	ctx, span := tracing.StartSpan(ctx, "transaction.Repository.Delete")
	defer span.End()

	sb := sqlbuilder.SQLite.NewDeleteBuilder()
	sb.DeleteFrom("transactions")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to delete transaction", zap.Int64("id", id), zap.Error(err))
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete transaction")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "transaction %d not found", id)
	}

	r.logger.Info("Deleted transaction", zap.Int64("id", id))
	return nil
}

// Summary aggregates income and expense totals for the matching
// transactions. Income is every row typed "income"; everything else counts
// as an expense.
func (r *Repository) Summary(ctx context.Context, filter ListFilter) (*models.FinancialSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "transaction.Repository.Summary")
	defer span.End()

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(
		"COALESCE(SUM(CASE WHEN transaction_type = 'income' THEN amount ELSE 0 END), 0) AS total_income",
		"COALESCE(SUM(CASE WHEN transaction_type <> 'income' THEN amount ELSE 0 END), 0) AS total_expenses",
	)
	sb.From("transactions")
	if filter.AssetID != 0 {
		sb.Where(sb.Equal("asset_id", filter.AssetID))
	}
	if filter.ProjectID != 0 {
		sb.Where(sb.Equal("project_id", filter.ProjectID))
	}
	if !filter.From.IsZero() {
		sb.Where(sb.GreaterEqualThan("date", filter.From))
	}
	if !filter.To.IsZero() {
		sb.Where(sb.LessEqualThan("date", filter.To))
	}

	query, args := sb.Build()
	var row struct {
		TotalIncome   float64 `db:"total_income"`
		TotalExpenses float64 `db:"total_expenses"`
	}
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		r.logger.Error("Failed to summarize transactions", zap.Error(err))
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to summarize transactions")
	}

	income := decimal.NewFromFloat(row.TotalIncome)
	expenses := decimal.NewFromFloat(row.TotalExpenses)
	return &models.FinancialSummary{
		TotalIncome:   income,
		TotalExpenses: expenses,
		NetCashFlow:   income.Sub(expenses),
	}, nil
}

// CategoryTotals returns expense totals grouped by category, largest first.
func (r *Repository) CategoryTotals(ctx context.Context, filter ListFilter) ([]models.CategoryTotal, error) {
	ctx, span := tracing.StartSpan(ctx, "transaction.Repository.CategoryTotals")
	defer span.End()

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("COALESCE(category, 'uncategorized') AS category", "SUM(amount) AS total")
	sb.From("transactions")
	sb.Where(sb.NotEqual("transaction_type", "income"))
	if filter.AssetID != 0 {
		sb.Where(sb.Equal("asset_id", filter.AssetID))
	}
	if !filter.From.IsZero() {
		sb.Where(sb.GreaterEqualThan("date", filter.From))
	}
	if !filter.To.IsZero() {
		sb.Where(sb.LessEqualThan("date", filter.To))
	}
	sb.GroupBy("category")
	sb.OrderBy("total DESC")

	query, args := sb.Build()
	totals := []models.CategoryTotal{}
	if err := r.db.SelectContext(ctx, &totals, query, args...); err != nil {
		r.logger.Error("Failed to total categories", zap.Error(err))
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to total categories")
	}
	return totals, nil
}
