// Package transaction exposes the transaction endpoints and financial
// summaries
package transaction

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/gilbertqld/terrace/internal/repositories/transaction"
	"github.com/gilbertqld/terrace/pkg/events"
	"github.com/gilbertqld/terrace/pkg/models"
	"github.com/gilbertqld/terrace/pkg/tracing"
)

const recordType = "transaction"

var validate = validator.New()

// Handler serves transaction routes
type Handler struct {
	repo    *transaction.Repository
	emitter *events.Emitter
}

// NewHandler creates a new transaction handler. emitter may be nil.
func NewHandler(repo *transaction.Repository, emitter *events.Emitter) *Handler {
	return &Handler{repo: repo, emitter: emitter}
}

// Register registers transaction routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/summary", h.Summary)
	g.GET("/categories", h.CategoryTotals)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Delete)
}

// List returns a page of transactions
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "transaction_handler.List")
	defer span.End()

	page, pageSize := pagination(c)
	filter, err := parseFilter(c)
	if err != nil {
		return err
	}

	result, err := h.repo.List(ctx, filter, page, pageSize)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Create creates a new transaction
func (h *Handler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "transaction_handler.Create")
	defer span.End()

	var req models.CreateTransactionRequest
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

// Get returns a single transaction by ID
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "transaction_handler.Get")
	defer span.End()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "id must be an integer")
	}

	result, err := h.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Delete removes a transaction
func (h *Handler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "transaction_handler.Delete")
	defer span.End()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "id must be an integer")
	}

	if err := h.repo.Delete(ctx, id); err != nil {
		return err
	}
	if h.emitter != nil {
		_ = h.emitter.EmitRecordDeleted(ctx, recordType, id)
	}
	return c.NoContent(http.StatusNoContent)
}

// Summary returns income and expense totals for the matching transactions
func (h *Handler) Summary(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "transaction_handler.Summary")
	defer span.End()

	filter, err := parseFilter(c)
	if err != nil {
		return err
	}

	result, err := h.repo.Summary(ctx, filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// CategoryTotals returns expense totals grouped by category
func (h *Handler) CategoryTotals(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "transaction_handler.CategoryTotals")
	defer span.End()

	filter, err := parseFilter(c)
	if err != nil {
		return err
	}

	result, err := h.repo.CategoryTotals(ctx, filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func parseFilter(c echo.Context) (transaction.ListFilter, error) {
	assetID, _ := strconv.ParseInt(c.QueryParam("asset_id"), 10, 64)
	projectID, _ := strconv.ParseInt(c.QueryParam("project_id"), 10, 64)

	filter := transaction.ListFilter{
		TransactionType: c.QueryParam("type"),
		AssetID:         assetID,
		ProjectID:       projectID,
	}
	if from := c.QueryParam("from"); from != "" {
		parsed, err := time.Parse("2006-01-02", from)
		if err != nil {
			return filter, httperror.NewHTTPError(http.StatusBadRequest, "from must be YYYY-MM-DD")
		}
		filter.From = parsed
	}
	if to := c.QueryParam("to"); to != "" {
		parsed, err := time.Parse("2006-01-02", to)
		if err != nil {
			return filter, httperror.NewHTTPError(http.StatusBadRequest, "to must be YYYY-MM-DD")
		}
		filter.To = parsed
	}
	return filter, nil
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
