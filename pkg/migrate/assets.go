package migrate

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gilbertqld/terrace/pkg/columns"
	"github.com/gilbertqld/terrace/pkg/database"
	"github.com/gilbertqld/terrace/pkg/tracing"
)

// relatedAssetCandidates are the legacy spellings of the free-text asset
// reference column seen on project exports.
var relatedAssetCandidates = []string{
	"related_asset", "relatedasset", "asset_name", "related_asset_name",
}

// copyAssets copies every source asset row whose columns intersect the
// destination schema. Returns a legacy-id -> new-id map (identity, since ids
// are copied verbatim) or an empty map when the source has no usable asset
// table.
func (m *Migrator) copyAssets(ctx context.Context, src, dst database.DB) (map[int64]int64, int, error) {
	ctx, span := tracing.StartSpan(ctx, "migrate.Migrator.copyAssets")
	defer span.End()

	exists, err := database.TableExists(ctx, src, "assets")
	if err != nil {
		return nil, 0, err
	}
	if !exists {
		return map[int64]int64{}, 0, nil
	}

	srcCols, err := database.TableColumns(ctx, src, "assets")
	if err != nil {
		return nil, 0, err
	}
	dstCols, err := database.TableColumns(ctx, dst, "assets")
	if err != nil {
		return nil, 0, err
	}

	srcSet := make(map[string]struct{}, len(srcCols))
	for _, col := range srcCols {
		srcSet[col] = struct{}{}
	}
	var copyCols []string
	for _, col := range dstCols {
		if _, ok := srcSet[col]; ok {
			copyCols = append(copyCols, col)
		}
	}
	if len(copyCols) == 0 {
		return map[int64]int64{}, 0, nil
	}

	quoted := make([]string, len(copyCols))
	placeholders := make([]string, len(copyCols))
	for i, col := range copyCols {
		quoted[i] = database.QuoteIdent(col)
		placeholders[i] = "?"
	}

	rows, err := src.QueryxContext(ctx, fmt.Sprintf("SELECT %s FROM assets", strings.Join(quoted, ", ")))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read source assets: %w", err)
	}
	defer rows.Close()

	insertSQL := fmt.Sprintf("INSERT INTO assets (%s) VALUES (%s)",
		strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	idIndex := -1
	for i, col := range copyCols {
		if col == "id" {
			idIndex = i
		}
	}

	idMap := make(map[int64]int64)
	copied := 0
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan source asset row: %w", err)
		}
		if _, err := dst.ExecContext(ctx, insertSQL, values...); err != nil {
			return nil, 0, fmt.Errorf("failed to insert asset row: %w", err)
		}
		copied++
		if idIndex >= 0 {
			if id, ok := asInt64(values[idIndex]); ok {
				idMap[id] = id
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	m.logger.Info("Copied assets from source", zap.Int("count", copied))
	return idMap, copied, nil
}

// synthesizeAssets derives asset rows from the legacy free-text reference
// column on project rows. Each distinct non-empty trimmed value becomes one
// new asset; a value seen twice reuses the same id. Runs only when the
// source had no formal asset table.
func (m *Migrator) synthesizeAssets(ctx context.Context, src, dst database.DB, relatedAssetCol string) (map[string]int64, error) {
	ctx, span := tracing.StartSpan(ctx, "migrate.Migrator.synthesizeAssets")
	defer span.End()

	quoted := database.QuoteIdent(relatedAssetCol)
	query := fmt.Sprintf(
		"SELECT DISTINCT %s FROM projects WHERE %s IS NOT NULL AND TRIM(%s) <> ''",
		quoted, quoted, quoted)

	var names []string
	if err := src.SelectContext(ctx, &names, query); err != nil {
		return nil, fmt.Errorf("failed to read distinct asset references: %w", err)
	}

	assetMap := make(map[string]int64, len(names))
	for _, name := range names {
		if _, ok := assetMap[name]; ok {
			continue
		}
		result, err := dst.ExecContext(ctx, "INSERT INTO assets (name) VALUES (?)", name)
		if err != nil {
			return nil, fmt.Errorf("failed to synthesize asset %q: %w", name, err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to read synthesized asset id: %w", err)
		}
		assetMap[name] = id
	}

	m.logger.Info("Synthesized assets from project references",
		zap.String("column", relatedAssetCol), zap.Int("count", len(assetMap)))
	return assetMap, nil
}

// resolveRelatedAssetColumn finds the legacy free-text asset reference
// column on the source projects table, or "" when none exists.
func resolveRelatedAssetColumn(ctx context.Context, src database.DB) (string, error) {
	srcCols, err := database.TableColumns(ctx, src, "projects")
	if err != nil {
		return "", err
	}
	return columns.Resolve(srcCols, relatedAssetCandidates...), nil
}
