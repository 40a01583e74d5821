// Package asset exposes the asset CRUD endpoints
package asset

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/gilbertqld/terrace/internal/repositories/asset"
	"github.com/gilbertqld/terrace/pkg/events"
	"github.com/gilbertqld/terrace/pkg/models"
	"github.com/gilbertqld/terrace/pkg/tracing"
)

const recordType = "asset"

var validate = validator.New()

// Handler serves asset routes
type Handler struct {
	repo    *asset.Repository
	emitter *events.Emitter
}

// NewHandler creates a new asset handler. emitter may be nil.
func NewHandler(repo *asset.Repository, emitter *events.Emitter) *Handler {
	return &Handler{repo: repo, emitter: emitter}
}

// Register registers asset routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

// List returns a page of assets
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "asset_handler.List")
	defer span.End()

	page, pageSize := pagination(c)
	filter := asset.ListFilter{
		AssetType: c.QueryParam("asset_type"),
		Region:    c.QueryParam("region"),
		Status:    c.QueryParam("status"),
	}

	result, err := h.repo.List(ctx, filter, page, pageSize)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Create creates a new asset
func (h *Handler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "asset_handler.Create")
	defer span.End()

	var req models.CreateAssetRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.repo.Create(ctx, &req)
	if err != nil {
		return err
	}
	if h.emitter != nil {
		_ = h.emitter.EmitRecordCreated(ctx, recordType, result.ID, result)
	}
	return c.JSON(http.StatusCreated, result)
}

// Get returns a single asset by ID
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "asset_handler.Get")
	defer span.End()

	id, err := pathID(c)
	if err != nil {
		return err
	}

	result, err := h.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Update replaces an asset
func (h *Handler) Update(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "asset_handler.Update")
	defer span.End()

	id, err := pathID(c)
	if err != nil {
		return err
	}

	var req models.CreateAssetRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.repo.Update(ctx, id, &req)
	if err != nil {
		return err
	}
	if h.emitter != nil {
		_ = h.emitter.EmitRecordUpdated(ctx, recordType, result.ID, result)
	}
	return c.JSON(http.StatusOK, result)
}

// Delete removes an asset
func (h *Handler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "asset_handler.Delete")
	defer span.End()

	id, err := pathID(c)
	if err != nil {
		return err
	}

	if err := h.repo.Delete(ctx, id); err != nil {
		return err
	}
	if h.emitter != nil {
		_ = h.emitter.EmitRecordDeleted(ctx, recordType, id)
	}
	return c.NoContent(http.StatusNoContent)
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, httperror.NewHTTPError(http.StatusBadRequest, "id must be an integer")
	}
	return id, nil
}

func pagination(c echo.Context) (int, int) {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	return page, pageSize
}
