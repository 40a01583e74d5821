package migrate

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gilbertqld/terrace/pkg/database"
)

type captureEmitter struct {
	completed []*Report
	failedIDs []string
	failedErr []error
}

func (c *captureEmitter) EmitMigrationCompleted(_ context.Context, report *Report) error {
	c.completed = append(c.completed, report)
	return nil
}

func (c *captureEmitter) EmitMigrationFailed(_ context.Context, runID string, runErr error) error {
	c.failedIDs = append(c.failedIDs, runID)
	c.failedErr = append(c.failedErr, runErr)
	return nil
}

func schemaPath(t *testing.T) string {
	t.Helper()
	path, err := filepath.Abs(filepath.Join("..", "..", "db", "schema_v2.sql"))
	require.NoError(t, err)
	return path
}

func createSourceDB(t *testing.T, path string, statements ...string) {
	t.Helper()
	db, err := database.Open(path)
	require.NoError(t, err)
	defer db.Close()
	for _, stmt := range statements {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
}

func backupsFor(t *testing.T, sourcePath string) []string {
	t.Helper()
	matches, err := filepath.Glob(sourcePath + ".backup.*")
	require.NoError(t, err)
	return matches
}

func TestMigrator_Run_SynthesizesAssetsFromProjectReferences(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "legacy.db")
	createSourceDB(t, srcPath,
		`CREATE TABLE projects (id INTEGER PRIMARY KEY, project_name TEXT, related_asset TEXT, budget REAL, "Completion Percentage" REAL)`,
		`INSERT INTO projects VALUES (1, 'Tower A', 'Site 7', 500000, 40)`,
		`INSERT INTO projects VALUES (2, 'Tower B', 'Site 7', 250000, 10)`,
		`INSERT INTO projects VALUES (3, 'Depot', NULL, NULL, NULL)`,
		`CREATE TABLE transactions (id INTEGER PRIMARY KEY, transaction_type TEXT, project_name TEXT, related_asset TEXT, amount NUMERIC, date TEXT)`,
		`INSERT INTO transactions VALUES (1, 'expense', 'Tower A', 'Site 7', 1000, '2024-01-15')`,
		`INSERT INTO transactions VALUES (2, 'income', 'Depot', NULL, 2500, '2024-02-01')`,
	)
	original, err := os.ReadFile(srcPath)
	require.NoError(t, err)

	emitter := &captureEmitter{}
	report, err := New(zap.NewNop(), emitter).Run(context.Background(), Options{
		SourcePath: srcPath,
		SchemaPath: schemaPath(t),
	})
	require.NoError(t, err)

	assert.Equal(t, StateCommitted, report.State)
	assert.Equal(t, 0, report.AssetsCopied)
	assert.Equal(t, 1, report.AssetsSynthesized)
	assert.Equal(t, 3, report.ProjectsMigrated)
	assert.Equal(t, 2, report.TransactionsMigrated)
	assert.Equal(t, filepath.Join(dir, "legacy_v2.db"), report.ResultPath)

	t.Run("source untouched and backup retained", func(t *testing.T) {
		current, err := os.ReadFile(srcPath)
		require.NoError(t, err)
		assert.Equal(t, original, current)

		backups := backupsFor(t, srcPath)
		require.Len(t, backups, 1)
		backed, err := os.ReadFile(backups[0])
		require.NoError(t, err)
		assert.Equal(t, original, backed)
	})

	ctx := context.Background()
	out, err := database.Open(report.ResultPath)
	require.NoError(t, err)
	defer out.Close()

	t.Run("one asset per distinct reference", func(t *testing.T) {
		var count int
		require.NoError(t, out.GetContext(ctx, &count, "SELECT COUNT(*) FROM assets"))
		assert.Equal(t, 1, count)

		var name string
		require.NoError(t, out.GetContext(ctx, &name, "SELECT name FROM assets"))
		assert.Equal(t, "Site 7", name)
	})

	t.Run("projects link to the synthesized asset", func(t *testing.T) {
		var siteID int64
		require.NoError(t, out.GetContext(ctx, &siteID, "SELECT id FROM assets WHERE name = 'Site 7'"))

		var towerA, towerB, depot sql.NullInt64
		require.NoError(t, out.GetContext(ctx, &towerA, "SELECT asset_id FROM projects WHERE project_name = 'Tower A'"))
		require.NoError(t, out.GetContext(ctx, &towerB, "SELECT asset_id FROM projects WHERE project_name = 'Tower B'"))
		require.NoError(t, out.GetContext(ctx, &depot, "SELECT asset_id FROM projects WHERE project_name = 'Depot'"))

		require.True(t, towerA.Valid)
		require.True(t, towerB.Valid)
		assert.Equal(t, siteID, towerA.Int64)
		assert.Equal(t, siteID, towerB.Int64)
		assert.False(t, depot.Valid, "project without a reference keeps a null asset_id")
	})

	t.Run("normalized column match copies legacy values", func(t *testing.T) {
		var completion float64
		require.NoError(t, out.GetContext(ctx, &completion,
			"SELECT completion_percentage FROM projects WHERE project_name = 'Tower A'"))
		assert.Equal(t, 40.0, completion)
	})

	t.Run("transactions resolve both foreign keys and default currency", func(t *testing.T) {
		var row struct {
			Currency  string        `db:"currency"`
			ProjectID sql.NullInt64 `db:"project_id"`
			AssetID   sql.NullInt64 `db:"asset_id"`
			Amount    float64       `db:"amount"`
		}
		require.NoError(t, out.GetContext(ctx, &row,
			"SELECT currency, project_id, asset_id, amount FROM transactions WHERE id = 1"))
		assert.Equal(t, "AUD", row.Currency)
		assert.Equal(t, 1000.0, row.Amount)
		require.True(t, row.ProjectID.Valid)
		assert.Equal(t, int64(1), row.ProjectID.Int64)
		require.True(t, row.AssetID.Valid)

		var depotTx sql.NullInt64
		require.NoError(t, out.GetContext(ctx, &depotTx,
			"SELECT project_id FROM transactions WHERE id = 2"))
		require.True(t, depotTx.Valid)
		assert.Equal(t, int64(3), depotTx.Int64)
	})

	t.Run("completion event emitted", func(t *testing.T) {
		require.Len(t, emitter.completed, 1)
		assert.Equal(t, report.RunID, emitter.completed[0].RunID)
		assert.Empty(t, emitter.failedIDs)
	})
}

func TestMigrator_Run_CopiesFormalAssetTable(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "portfolio.db")
	createSourceDB(t, srcPath,
		`CREATE TABLE assets (id INTEGER PRIMARY KEY, name TEXT, region TEXT)`,
		`INSERT INTO assets VALUES (1, 'Northgate', 'QLD')`,
		`INSERT INTO assets VALUES (2, 'Southbank', 'VIC')`,
		`CREATE TABLE projects (id INTEGER PRIMARY KEY, project_name TEXT, asset_id INTEGER)`,
		`INSERT INTO projects VALUES (1, 'Fitout', 1)`,
		`INSERT INTO projects VALUES (2, 'Refurb', 2)`,
		`CREATE TABLE transactions (id INTEGER PRIMARY KEY, transaction_type TEXT, project_id INTEGER, asset_id INTEGER, amount NUMERIC, date TEXT, currency TEXT)`,
		`INSERT INTO transactions VALUES (1, 'expense', 1, 1, 99.5, '2024-03-01', 'USD')`,
	)

	report, err := New(zap.NewNop(), nil).Run(context.Background(), Options{
		SourcePath: srcPath,
		SchemaPath: schemaPath(t),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.AssetsCopied)
	assert.Equal(t, 0, report.AssetsSynthesized, "synthesis must not run next to a formal asset table")

	ctx := context.Background()
	out, err := database.Open(report.ResultPath)
	require.NoError(t, err)
	defer out.Close()

	var region string
	require.NoError(t, out.GetContext(ctx, &region, "SELECT region FROM assets WHERE name = 'Northgate'"))
	assert.Equal(t, "QLD", region)

	var fitoutAsset sql.NullInt64
	require.NoError(t, out.GetContext(ctx, &fitoutAsset, "SELECT asset_id FROM projects WHERE id = 1"))
	require.True(t, fitoutAsset.Valid)
	assert.Equal(t, int64(1), fitoutAsset.Int64)

	var currency string
	require.NoError(t, out.GetContext(ctx, &currency, "SELECT currency FROM transactions WHERE id = 1"))
	assert.Equal(t, "USD", currency, "source currency is preserved, not defaulted")
}

func TestMigrator_Run_ReplaceMode(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "portfolio.db")
	createSourceDB(t, srcPath,
		`CREATE TABLE projects (id INTEGER PRIMARY KEY, project_name TEXT, related_asset TEXT)`,
		`INSERT INTO projects VALUES (1, 'Tower A', 'Site 7')`,
		`CREATE TABLE transactions (id INTEGER PRIMARY KEY, transaction_type TEXT, project_name TEXT, amount NUMERIC, date TEXT)`,
		`INSERT INTO transactions VALUES (1, 'expense', 'Tower A', 1000, '2024-01-15')`,
	)
	original, err := os.ReadFile(srcPath)
	require.NoError(t, err)

	report, err := New(zap.NewNop(), nil).Run(context.Background(), Options{
		SourcePath: srcPath,
		SchemaPath: schemaPath(t),
		Replace:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, srcPath, report.ResultPath)

	ctx := context.Background()
	migrated, err := database.Open(srcPath)
	require.NoError(t, err)
	defer migrated.Close()

	cols, err := database.TableColumns(ctx, migrated, "projects")
	require.NoError(t, err)
	assert.Contains(t, cols, "asset_id", "source file now carries the new schema")

	backups := backupsFor(t, srcPath)
	require.Len(t, backups, 1)
	backed, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, original, backed, "backup preserves the pre-migration file")
}

func TestMigrator_Run_RollsBackOnValidationFailure(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "legacy.db")
	// Dangling asset_id with no asset table: the value passes through and the
	// orphan check must catch it.
	createSourceDB(t, srcPath,
		`CREATE TABLE projects (id INTEGER PRIMARY KEY, project_name TEXT, asset_id INTEGER)`,
		`INSERT INTO projects VALUES (1, 'Tower A', 99)`,
		`CREATE TABLE transactions (id INTEGER PRIMARY KEY, transaction_type TEXT, amount NUMERIC, date TEXT)`,
		`INSERT INTO transactions VALUES (1, 'expense', 1000, '2024-01-15')`,
	)
	original, err := os.ReadFile(srcPath)
	require.NoError(t, err)

	emitter := &captureEmitter{}
	report, err := New(zap.NewNop(), emitter).Run(context.Background(), Options{
		SourcePath: srcPath,
		SchemaPath: schemaPath(t),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "projects with missing assets")
	assert.Equal(t, StateRolledBack, report.State)

	t.Run("source restored byte for byte", func(t *testing.T) {
		current, readErr := os.ReadFile(srcPath)
		require.NoError(t, readErr)
		assert.Equal(t, original, current)
	})

	t.Run("no partial artifacts left behind", func(t *testing.T) {
		_, statErr := os.Stat(srcPath + ".v2.tmp")
		assert.True(t, os.IsNotExist(statErr))
		_, statErr = os.Stat(filepath.Join(dir, "legacy_v2.db"))
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("backup retained for audit", func(t *testing.T) {
		assert.Len(t, backupsFor(t, srcPath), 1)
	})

	t.Run("failure event carries the original error", func(t *testing.T) {
		require.Len(t, emitter.failedIDs, 1)
		assert.Equal(t, report.RunID, emitter.failedIDs[0])
		require.Len(t, emitter.failedErr, 1)
		assert.Equal(t, err, emitter.failedErr[0])
		assert.Empty(t, emitter.completed)
	})
}

func TestMigrator_Run_RollsBackOnMissingSchema(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "legacy.db")
	createSourceDB(t, srcPath,
		`CREATE TABLE projects (id INTEGER PRIMARY KEY, project_name TEXT)`,
		`CREATE TABLE transactions (id INTEGER PRIMARY KEY, amount NUMERIC)`,
	)
	original, err := os.ReadFile(srcPath)
	require.NoError(t, err)

	report, err := New(zap.NewNop(), nil).Run(context.Background(), Options{
		SourcePath: srcPath,
		SchemaPath: filepath.Join(dir, "missing_schema.sql"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read schema")
	assert.Equal(t, StateRolledBack, report.State)

	current, err := os.ReadFile(srcPath)
	require.NoError(t, err)
	assert.Equal(t, original, current)
}

func TestMigrator_Run_Preconditions(t *testing.T) {
	t.Run("missing source file", func(t *testing.T) {
		dir := t.TempDir()
		report, err := New(zap.NewNop(), nil).Run(context.Background(), Options{
			SourcePath: filepath.Join(dir, "nope.db"),
			SchemaPath: schemaPath(t),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "source database not found")
		assert.Equal(t, StateNotStarted, report.State)
	})

	t.Run("missing required tables", func(t *testing.T) {
		dir := t.TempDir()
		srcPath := filepath.Join(dir, "legacy.db")
		createSourceDB(t, srcPath,
			`CREATE TABLE projects (id INTEGER PRIMARY KEY, project_name TEXT)`,
		)
		original, err := os.ReadFile(srcPath)
		require.NoError(t, err)

		report, err := New(zap.NewNop(), nil).Run(context.Background(), Options{
			SourcePath: srcPath,
			SchemaPath: schemaPath(t),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "projects and transactions")
		assert.Equal(t, StateNotStarted, report.State)

		assert.Empty(t, backupsFor(t, srcPath), "no backup before preconditions pass")
		current, err := os.ReadFile(srcPath)
		require.NoError(t, err)
		assert.Equal(t, original, current)
	})
}

func TestResolveAssetID(t *testing.T) {
	assetIDs := map[int64]int64{1: 10}
	assetNames := map[string]int64{"Site 7": 42}

	tests := []struct {
		name     string
		row      map[string]any
		idCol    string
		refCol   string
		expected any
	}{
		{
			name:     "direct foreign key remapped",
			row:      map[string]any{"asset_id": int64(1)},
			idCol:    "asset_id",
			expected: int64(10),
		},
		{
			name:     "unmapped foreign key passes through",
			row:      map[string]any{"asset_id": int64(7)},
			idCol:    "asset_id",
			expected: int64(7),
		},
		{
			name:     "free-text reference resolves through name map",
			row:      map[string]any{"related_asset": "Site 7"},
			refCol:   "related_asset",
			expected: int64(42),
		},
		{
			name:     "null foreign key falls back to reference",
			row:      map[string]any{"asset_id": nil, "related_asset": "Site 7"},
			idCol:    "asset_id",
			refCol:   "related_asset",
			expected: int64(42),
		},
		{
			name:     "unknown reference yields null",
			row:      map[string]any{"related_asset": "Somewhere Else"},
			refCol:   "related_asset",
			expected: nil,
		},
		{
			name:     "nothing to resolve yields null",
			row:      map[string]any{},
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveAssetID(tt.row, tt.idCol, tt.refCol, assetIDs, assetNames)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestResolveProjectID(t *testing.T) {
	lookup := map[string]int64{"Tower A": 1, "TWA-001": 1}

	t.Run("direct foreign key passes through verbatim", func(t *testing.T) {
		got := resolveProjectID(map[string]any{"project_id": int64(5)}, "project_id", "", lookup)
		assert.Equal(t, int64(5), got)
	})

	t.Run("business key lookup", func(t *testing.T) {
		got := resolveProjectID(map[string]any{"project_name": "Tower A"}, "", "project_name", lookup)
		assert.Equal(t, int64(1), got)
	})

	t.Run("unknown business key yields null", func(t *testing.T) {
		got := resolveProjectID(map[string]any{"project_name": "Tower Z"}, "", "project_name", lookup)
		assert.Nil(t, got)
	})
}

func TestDefaultOutputPath(t *testing.T) {
	assert.Equal(t, "portfolio_v2.db", defaultOutputPath("portfolio.db"))
	assert.Equal(t, filepath.Join("data", "legacy_v2.sqlite"), defaultOutputPath(filepath.Join("data", "legacy.sqlite")))
	assert.Equal(t, "portfolio_v2", defaultOutputPath("portfolio"))
}
