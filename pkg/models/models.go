package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Asset represents a physical property in the portfolio.
// Column order matches db/schema_v2.sql.
type Asset struct {
	ID              int64      `json:"id" db:"id"`
	Name            string     `json:"name" db:"name"`
	AssetType       *string    `json:"asset_type,omitempty" db:"asset_type"`
	Region          *string    `json:"region,omitempty" db:"region"`
	Address         *string    `json:"address,omitempty" db:"address"`
	LandAreaSqm     *float64   `json:"land_area_sqm,omitempty" db:"land_area_sqm"`
	BuildingAreaSqm *float64   `json:"building_area_sqm,omitempty" db:"building_area_sqm"`
	CurrentValuation *float64  `json:"current_valuation,omitempty" db:"current_valuation"`
	AcquisitionDate *time.Time `json:"acquisition_date,omitempty" db:"acquisition_date"`
	Status          *string    `json:"status,omitempty" db:"status"`
	Notes           *string    `json:"notes,omitempty" db:"notes"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// Project represents a development effort, optionally linked to an Asset.
type Project struct {
	ID                   int64      `json:"id" db:"id"`
	ProjectName          string     `json:"project_name" db:"project_name"`
	ProjectCode          *string    `json:"project_code,omitempty" db:"project_code"`
	ProjectType          *string    `json:"project_type,omitempty" db:"project_type"`
	Location             *string    `json:"location,omitempty" db:"location"`
	Budget               *float64   `json:"budget,omitempty" db:"budget"`
	ActualCost           *float64   `json:"actual_cost,omitempty" db:"actual_cost"`
	CompletionPercentage *float64   `json:"completion_percentage,omitempty" db:"completion_percentage"`
	StartDate            *time.Time `json:"start_date,omitempty" db:"start_date"`
	EstimatedCompletion  *time.Time `json:"estimated_completion,omitempty" db:"estimated_completion"`
	Status               *string    `json:"status,omitempty" db:"status"`
	Description          *string    `json:"description,omitempty" db:"description"`
	AssetID              *int64     `json:"asset_id,omitempty" db:"asset_id"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at" db:"updated_at"`
}

// Transaction represents a financial event, optionally linked to a Project
// and an Asset.
type Transaction struct {
	ID              int64           `json:"id" db:"id"`
	TransactionType string          `json:"transaction_type" db:"transaction_type"`
	Category        *string         `json:"category,omitempty" db:"category"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	Date            time.Time       `json:"date" db:"date"`
	Currency        string          `json:"currency" db:"currency"`
	AssetID         *int64          `json:"asset_id,omitempty" db:"asset_id"`
	ProjectID       *int64          `json:"project_id,omitempty" db:"project_id"`
	Description     *string         `json:"description,omitempty" db:"description"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// CreateAssetRequest is the request body for creating an asset
type CreateAssetRequest struct {
	Name             string     `json:"name" validate:"required"`
	AssetType        *string    `json:"asset_type,omitempty"`
	Region           *string    `json:"region,omitempty"`
	Address          *string    `json:"address,omitempty"`
	LandAreaSqm      *float64   `json:"land_area_sqm,omitempty"`
	BuildingAreaSqm  *float64   `json:"building_area_sqm,omitempty"`
	CurrentValuation *float64   `json:"current_valuation,omitempty"`
	AcquisitionDate  *time.Time `json:"acquisition_date,omitempty"`
	Status           *string    `json:"status,omitempty"`
	Notes            *string    `json:"notes,omitempty"`
}

// CreateProjectRequest is the request body for creating a project
type CreateProjectRequest struct {
	ProjectName          string     `json:"project_name" validate:"required"`
	ProjectCode          *string    `json:"project_code,omitempty"`
	ProjectType          *string    `json:"project_type,omitempty"`
	Location             *string    `json:"location,omitempty"`
	Budget               *float64   `json:"budget,omitempty"`
	ActualCost           *float64   `json:"actual_cost,omitempty"`
	CompletionPercentage *float64   `json:"completion_percentage,omitempty" validate:"omitempty,gte=0,lte=100"`
	StartDate            *time.Time `json:"start_date,omitempty"`
	EstimatedCompletion  *time.Time `json:"estimated_completion,omitempty"`
	Status               *string    `json:"status,omitempty"`
	Description          *string    `json:"description,omitempty"`
	AssetID              *int64     `json:"asset_id,omitempty"`
}

// CreateTransactionRequest is the request body for creating a transaction
type CreateTransactionRequest struct {
	TransactionType string          `json:"transaction_type" validate:"required"`
	Category        *string         `json:"category,omitempty"`
	Amount          decimal.Decimal `json:"amount" validate:"required"`
	Date            time.Time       `json:"date" validate:"required"`
	Currency        string          `json:"currency,omitempty"`
	AssetID         *int64          `json:"asset_id,omitempty"`
	ProjectID       *int64          `json:"project_id,omitempty"`
	Description     *string         `json:"description,omitempty"`
}

// AssetListResponse is the response for listing assets
type AssetListResponse struct {
	Items      []Asset `json:"items"`
	TotalCount int     `json:"total_count"`
	Page       int     `json:"page"`
	PageSize   int     `json:"page_size"`
}

// ProjectListResponse is the response for listing projects
type ProjectListResponse struct {
	Items      []Project `json:"items"`
	TotalCount int       `json:"total_count"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
}

// TransactionListResponse is the response for listing transactions
type TransactionListResponse struct {
	Items      []Transaction `json:"items"`
	TotalCount int           `json:"total_count"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
}

// FinancialSummary aggregates transaction amounts by direction for a date
// range or asset.
type FinancialSummary struct {
	TotalIncome   decimal.Decimal `json:"total_income"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	NetCashFlow   decimal.Decimal `json:"net_cash_flow"`
}

// CategoryTotal is one row of a per-category breakdown
type CategoryTotal struct {
	Category string          `json:"category" db:"category"`
	Total    decimal.Decimal `json:"total" db:"total"`
}
