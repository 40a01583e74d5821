// Package asset handles asset persistence
package asset

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/huandu/go-sqlbuilder"
	"go.uber.org/zap"

	"github.com/gilbertqld/terrace/pkg/database"
	"github.com/gilbertqld/terrace/pkg/models"
	"github.com/gilbertqld/terrace/pkg/tracing"
)

var assetColumns = []string{
	"id", "name", "asset_type", "region", "address", "land_area_sqm",
	"building_area_sqm", "current_valuation", "acquisition_date", "status",
	"notes", "created_at", "updated_at",
}

// ListFilter narrows List results. Zero values mean "no filter".
type ListFilter struct {
	AssetType string
	Region    string
	Status    string
}

// Repository handles asset persistence
type Repository struct {
	db     database.DB
	logger *zap.Logger
}

// NewRepository creates a new asset repository
func NewRepository(db database.DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new asset
func (r *Repository) Create(ctx context.Context, req *models.CreateAssetRequest) (*models.Asset, error) {
	ctx, span := tracing.StartSpan(ctx, "asset.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.SQLite.NewInsertBuilder()
	sb.InsertInto("assets")
	sb.Cols("name", "asset_type", "region", "address", "land_area_sqm",
		"building_area_sqm", "current_valuation", "acquisition_date", "status",
		"notes", "created_at", "updated_at")
	sb.Values(req.Name, req.AssetType, req.Region, req.Address, req.LandAreaSqm,
		req.BuildingAreaSqm, req.CurrentValuation, req.AcquisitionDate, req.Status,
		req.Notes, now, now)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to create asset", zap.Error(err))
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create asset")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create asset")
	}

	r.logger.Info("Created asset", zap.Int64("id", id), zap.String("name", req.Name))
	return r.Get(ctx, id)
}

// Get retrieves an asset by ID
func (r *Repository) Get(ctx context.Context, id int64) (*models.Asset, error) {
	ctx, span := tracing.StartSpan(ctx, "asset.Repository.Get")
	defer span.End()

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(assetColumns...)
	sb.From("assets")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var asset models.Asset
	if err := r.db.GetContext(ctx, &asset, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "asset %d not found", id)
		}
		r.logger.Error("Failed to get asset", zap.Int64("id", id), zap.Error(err))
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get asset")
	}

	return &asset, nil
}

// List retrieves a page of assets ordered by name
func (r *Repository) List(ctx context.Context, filter ListFilter, page, pageSize int) (*models.AssetListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "asset.Repository.List")
	defer span.End()

	applyFilter := func(sb *sqlbuilder.SelectBuilder) {
		if filter.AssetType != "" {
			sb.Where(sb.Equal("asset_type", filter.AssetType))
		}
		if filter.Region != "" {
			sb.Where(sb.Equal("region", filter.Region))
		}
		if filter.Status != "" {
			sb.Where(sb.Equal("status", filter.Status))
		}
	}

	countBuilder := sqlbuilder.SQLite.NewSelectBuilder()
	countBuilder.Select("COUNT(*)")
	countBuilder.From("assets")
	applyFilter(countBuilder)

	query, args := countBuilder.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		r.logger.Error("Failed to count assets", zap.Error(err))
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list assets")
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(assetColumns...)
	sb.From("assets")
	applyFilter(sb)
	sb.OrderBy("name")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args = sb.Build()
	items := []models.Asset{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.Error("Failed to list assets", zap.Error(err))
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list assets")
	}

	return &models.AssetListResponse{
		Items:      items,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// Update replaces an asset's attributes
func (r *Repository) Update(ctx context.Context, id int64, req *models.CreateAssetRequest) (*models.Asset, error) {
	ctx, span := tracing.StartSpan(ctx, "asset.Repository.Update")
	defer span.End()

	sb := sqlbuilder.SQLite.NewUpdateBuilder()
	sb.Update("assets")
	sb.Set(
		sb.Assign("name", req.Name),
		sb.Assign("asset_type", req.AssetType),
		sb.Assign("region", req.Region),
		sb.Assign("address", req.Address),
		sb.Assign("land_area_sqm", req.LandAreaSqm),
		sb.Assign("building_area_sqm", req.BuildingAreaSqm),
		sb.Assign("current_valuation", req.CurrentValuation),
		sb.Assign("acquisition_date", req.AcquisitionDate),
		sb.Assign("status", req.Status),
		sb.Assign("notes", req.Notes),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update asset", zap.Int64("id", id), zap.Error(err))
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update asset")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "asset %d not found", id)
	}

	return r.Get(ctx, id)
}

// Delete removes an asset
func (r *Repository) Delete(ctx context.Context, id int64) error {
	ctx, span := tracing.StartSpan(ctx, "asset.Repository.Delete")
	defer span.End()

	sb := sqlbuilder.SQLite.NewDeleteBuilder()
	sb.DeleteFrom("assets")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to delete asset", zap.Int64("id", id), zap.Error(err))
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete asset")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "asset %d not found", id)
	}

	r.logger.Info("Deleted asset", zap.Int64("id", id))
	return nil
}
