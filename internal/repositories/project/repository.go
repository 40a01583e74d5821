// Package project handles project persistence
package project

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

var projectColumns = []string{
	"id", "project_name", "project_code", "project_type", "location", "budget",
	"actual_cost", "completion_percentage", "start_date", "estimated_completion",
	"status", "description", "asset_id", "created_at", "updated_at",
}

// ListFilter narrows List results. Zero values mean "no filter".
type ListFilter struct {
	Status  string
	AssetID int64
}

// Repository handles project persistence
type Repository struct {
	db     database.DB
	logger *zap.Logger
}

// NewRepository creates a new project repository
func NewRepository(db database.DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new project
func (r *Repository) Create(ctx context.Context, req *models.CreateProjectRequest) (*models.Project, error) {
	ctx, span := tracing.StartSpan(ctx, "project.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.SQLite.NewInsertBuilder()
	sb.InsertInto("projects")
	sb.Cols("project_name", "project_code", "project_type", "location", "budget",
		"actual_cost", "completion_percentage", "start_date", "estimated_completion",
		"status", "description", "asset_id", "created_at", "updated_at")
	sb.Values(req.ProjectName, req.ProjectCode, req.ProjectType, req.Location, req.Budget,
		req.ActualCost, req.CompletionPercentage, req.StartDate, req.EstimatedCompletion,
		req.Status, req.Description, req.AssetID, now, now)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to create project", zap.Error(err))
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create project")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create project")
	}

	r.logger.Info("Created project", zap.Int64("id", id), zap.String("project_name", req.ProjectName))
	return r.Get(ctx, id)
}

// Get retrieves a project by ID
func (r *Repository) Get(ctx context.Context, id int64) (*models.Project, error) {
	ctx, span := tracing.StartSpan(ctx, "project.Repository.Get")
	defer span.End()

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(projectColumns...)
	sb.From("projects")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var project models.Project
	if err := r.db.GetContext(ctx, &project, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "project %d not found", id)
		}
		r.logger.Error("Failed to get project", zap.Int64("id", id), zap.Error(err))
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get project")
	}

	return &project, nil
}

// List retrieves a page of projects ordered by name
func (r *Repository) List(ctx context.Context, filter ListFilter, page, pageSize int) (*models.ProjectListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "project.Repository.List")
	defer span.End()

	applyFilter := func(sb *sqlbuilder.SelectBuilder) {
		if filter.Status != "" {
			sb.Where(sb.Equal("status", filter.Status))
		}
		if filter.AssetID != 0 {
			sb.Where(sb.Equal("asset_id", filter.AssetID))
		}
	}

	countBuilder := sqlbuilder.SQLite.NewSelectBuilder()
	countBuilder.Select("COUNT(*)")
	countBuilder.From("projects")
	applyFilter(countBuilder)

	query, args := countBuilder.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		r.logger.Error("Failed to count projects", zap.Error(err))
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list projects")
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(projectColumns...)
	sb.From("projects")
	applyFilter(sb)
	sb.OrderBy("project_name")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args = sb.Build()
	items := []models.Project{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.Error("Failed to list projects", zap.Error(err))
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list projects")
	}

	return &models.ProjectListResponse{
		Items:      items,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// Update replaces a project's attributes
func (r *Repository) Update(ctx context.Context, id int64, req *models.CreateProjectRequest) (*models.Project, error) {
	ctx, span := tracing.StartSpan(ctx, "project.Repository.Update")
	defer span.End()

	sb := sqlbuilder.SQLite.NewUpdateBuilder()
	sb.Update("projects")
	sb.Set(
		sb.Assign("project_name", req.ProjectName),
		sb.Assign("project_code", req.ProjectCode),
		sb.Assign("project_type", req.ProjectType),
		sb.Assign("location", req.Location),
		sb.Assign("budget", req.Budget),
		sb.Assign("actual_cost", req.ActualCost),
		sb.Assign("completion_percentage", req.CompletionPercentage),
		sb.Assign("start_date", req.StartDate),
		sb.Assign("estimated_completion", req.EstimatedCompletion),
		sb.Assign("status", req.Status),
		sb.Assign("description", req.Description),
		sb.Assign("asset_id", req.AssetID),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update project", zap.Int64("id", id), zap.Error(err))
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update project")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "project %d not found", id)
	}

	return r.Get(ctx, id)
}

// Delete removes a project
func (r *Repository) Delete(ctx context.Context, id int64) error {
	ctx, span := tracing.StartSpan(ctx, "project.Repository.Delete")
	defer span.End()

	sb := sqlbuilder.SQLite.NewDeleteBuilder()
	sb.DeleteFrom("projects")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to delete project", zap.Int64("id", id), zap.Error(err))
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete project")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "project %d not found", id)
	}

	r.logger.Info("Deleted project", zap.Int64("id", id))
	return nil
}
