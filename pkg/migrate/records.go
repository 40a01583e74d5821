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

// defaultCurrency is applied to migrated transactions when the legacy source
// carried no currency-like column.
const defaultCurrency = "AUD"

// migrateProjects copies every source project row into the destination,
// resolving asset_id through the id map (direct legacy FK, unmapped ids pass
// through) or the synthesized name map (free-text reference). Returns a
// business-key lookup (project name, falling back to project code) to the
// legacy project id, consumed by the transactions phase.
func (m *Migrator) migrateProjects(
	ctx context.Context,
	src, dst database.DB,
	assetNames map[string]int64,
	assetIDs map[int64]int64,
) (map[string]int64, int, error) {
	ctx, span := tracing.StartSpan(ctx, "migrate.Migrator.migrateProjects")
	defer span.End()

	srcCols, err := database.TableColumns(ctx, src, "projects")
	if err != nil {
		return nil, 0, err
	}
	dstCols, err := database.TableColumns(ctx, dst, "projects")
	if err != nil {
		return nil, 0, err
	}

	srcAssetIDCol := columns.Resolve(srcCols, "asset_id")
	relatedAssetCol := columns.Resolve(srcCols, relatedAssetCandidates...)
	projectNameCol := columns.Resolve(srcCols, "project_name", "project", "name")
	projectCodeCol := columns.Resolve(srcCols, "project_code", "code")
	srcByNormalized := columns.Index(srcCols)
	srcSet := make(map[string]struct{}, len(srcCols))
	for _, col := range srcCols {
		srcSet[col] = struct{}{}
	}

	rows, err := src.QueryxContext(ctx, "SELECT * FROM projects")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read source projects: %w", err)
	}
	defer rows.Close()

	nameMap := make(map[string]int64)
	codeMap := make(map[string]int64)
	migrated := 0

	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, 0, fmt.Errorf("failed to scan source project row: %w", err)
		}

		insertCols := make([]string, 0, len(dstCols))
		insertVals := make([]any, 0, len(dstCols))
		for _, col := range dstCols {
			switch {
			case col == "asset_id":
				insertCols = append(insertCols, col)
				insertVals = append(insertVals, resolveAssetID(row, srcAssetIDCol, relatedAssetCol, assetIDs, assetNames))
			default:
				srcCol := col
				if _, ok := srcSet[col]; !ok {
					srcCol = srcByNormalized[columns.Normalize(col)]
				}
				if srcCol == "" {
					continue // destination default applies
				}
				insertCols = append(insertCols, col)
				insertVals = append(insertVals, row[srcCol])
			}
		}

		if err := insertRow(ctx, dst, "projects", insertCols, insertVals); err != nil {
			return nil, 0, err
		}
		migrated++

		legacyID, hasID := asInt64(row["id"])
		if !hasID {
			continue
		}
		if projectNameCol != "" {
			if name, ok := asString(row[projectNameCol]); ok && name != "" {
				nameMap[name] = legacyID
			}
		}
		if projectCodeCol != "" {
			if code, ok := asString(row[projectCodeCol]); ok && code != "" {
				codeMap[code] = legacyID
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// Explicit two-step merge: code keys first, name keys overwrite.
	// Project name takes precedence when a value appears in both maps.
	lookup := make(map[string]int64, len(nameMap)+len(codeMap))
	for code, id := range codeMap {
		lookup[code] = id
	}
	for name, id := range nameMap {
		lookup[name] = id
	}

	m.logger.Info("Migrated projects", zap.Int("count", migrated),
		zap.Int("lookup_keys", len(lookup)))
	return lookup, migrated, nil
}

// migrateTransactions copies every source transaction row, resolving
// asset_id as in migrateProjects and project_id via the direct legacy FK or
// the projects phase business-key lookup. Defaults currency when the
// destination requires one and the source had none.
func (m *Migrator) migrateTransactions(
	ctx context.Context,
	src, dst database.DB,
	assetNames map[string]int64,
	assetIDs map[int64]int64,
	projectLookup map[string]int64,
) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "migrate.Migrator.migrateTransactions")
	defer span.End()

	srcCols, err := database.TableColumns(ctx, src, "transactions")
	if err != nil {
		return 0, err
	}
	dstCols, err := database.TableColumns(ctx, dst, "transactions")
	if err != nil {
		return 0, err
	}

	srcAssetIDCol := columns.Resolve(srcCols, "asset_id")
	srcProjectIDCol := columns.Resolve(srcCols, "project_id")
	relatedAssetCol := columns.Resolve(srcCols, relatedAssetCandidates...)
	projectRefCol := columns.Resolve(srcCols, "project_name", "project", "project_code")
	srcByNormalized := columns.Index(srcCols)
	srcSet := make(map[string]struct{}, len(srcCols))
	for _, col := range srcCols {
		srcSet[col] = struct{}{}
	}
	dstHasCurrency := false
	for _, col := range dstCols {
		if col == "currency" {
			dstHasCurrency = true
		}
	}

	rows, err := src.QueryxContext(ctx, "SELECT * FROM transactions")
	if err != nil {
		return 0, fmt.Errorf("failed to read source transactions: %w", err)
	}
	defer rows.Close()

	migrated := 0
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return 0, fmt.Errorf("failed to scan source transaction row: %w", err)
		}

		insertCols := make([]string, 0, len(dstCols))
		insertVals := make([]any, 0, len(dstCols))
		currencySet := false
		for _, col := range dstCols {
			switch {
			case col == "asset_id":
				insertCols = append(insertCols, col)
				insertVals = append(insertVals, resolveAssetID(row, srcAssetIDCol, relatedAssetCol, assetIDs, assetNames))
			case col == "project_id":
				insertCols = append(insertCols, col)
				insertVals = append(insertVals, resolveProjectID(row, srcProjectIDCol, projectRefCol, projectLookup))
			default:
				srcCol := col
				if _, ok := srcSet[col]; !ok {
					srcCol = srcByNormalized[columns.Normalize(col)]
				}
				if srcCol == "" {
					continue
				}
				if col == "currency" {
					currencySet = true
				}
				insertCols = append(insertCols, col)
				insertVals = append(insertVals, row[srcCol])
			}
		}

		if dstHasCurrency && !currencySet {
			insertCols = append(insertCols, "currency")
			insertVals = append(insertVals, defaultCurrency)
		}

		if err := insertRow(ctx, dst, "transactions", insertCols, insertVals); err != nil {
			return 0, err
		}
		migrated++
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	m.logger.Info("Migrated transactions", zap.Int("count", migrated))
	return migrated, nil
}

// resolveAssetID applies the FK resolution order: direct legacy FK remapped
// through the id map (unmapped legacy ids pass through rather than being
// nulled), then the free-text reference through the synthesized name map,
// then null.
func resolveAssetID(
	row map[string]any,
	srcAssetIDCol, relatedAssetCol string,
	assetIDs map[int64]int64,
	assetNames map[string]int64,
) any {
	if srcAssetIDCol != "" && row[srcAssetIDCol] != nil {
		raw := row[srcAssetIDCol]
		if legacy, ok := asInt64(raw); ok {
			if mapped, ok := assetIDs[legacy]; ok {
				return mapped
			}
		}
		return raw
	}
	if relatedAssetCol != "" {
		if name, ok := asString(row[relatedAssetCol]); ok && name != "" {
			if id, ok := assetNames[name]; ok {
				return id
			}
		}
	}
	return nil
}

// resolveProjectID prefers the direct legacy FK (passed through verbatim,
// since project ids are copied as-is) and falls back to the business-key
// lookup built during the projects phase.
func resolveProjectID(
	row map[string]any,
	srcProjectIDCol, projectRefCol string,
	projectLookup map[string]int64,
) any {
	if srcProjectIDCol != "" && row[srcProjectIDCol] != nil {
		return row[srcProjectIDCol]
	}
	if projectRefCol != "" {
		if key, ok := asString(row[projectRefCol]); ok && key != "" {
			if id, ok := projectLookup[key]; ok {
				return id
			}
		}
	}
	return nil
}

func insertRow(ctx context.Context, dst database.DB, table string, cols []string, vals []any) error {
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = database.QuoteIdent(col)
		placeholders[i] = "?"
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	if _, err := dst.ExecContext(ctx, insertSQL, vals...); err != nil {
		return fmt.Errorf("failed to insert %s row: %w", table, err)
	}
	return nil
}
