package migrate

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/gilbertqld/terrace/pkg/database"
	"github.com/gilbertqld/terrace/pkg/tracing"
)

// validate runs the post-migration integrity checks. All five checks are
// evaluated independently and their failures accumulated; any failure aborts
// the run.
func (m *Migrator) validate(ctx context.Context, src, dst database.DB) error {
	ctx, span := tracing.StartSpan(ctx, "migrate.Migrator.validate")
	defer span.End()

	var result *multierror.Error

	srcProjects, err := database.CountRows(ctx, src, "projects")
	if err != nil {
		return err
	}
	dstProjects, err := database.CountRows(ctx, dst, "projects")
	if err != nil {
		return err
	}
	if srcProjects != dstProjects {
		result = multierror.Append(result,
			fmt.Errorf("project count mismatch: %d -> %d", srcProjects, dstProjects))
	}

	srcTransactions, err := database.CountRows(ctx, src, "transactions")
	if err != nil {
		return err
	}
	dstTransactions, err := database.CountRows(ctx, dst, "transactions")
	if err != nil {
		return err
	}
	if srcTransactions != dstTransactions {
		result = multierror.Append(result,
			fmt.Errorf("transaction count mismatch: %d -> %d", srcTransactions, dstTransactions))
	}

	orphanChecks := []struct {
		query   string
		message string
	}{
		{
			query: `SELECT COUNT(*) FROM projects
				WHERE asset_id IS NOT NULL
				  AND asset_id NOT IN (SELECT id FROM assets)`,
			message: "found %d projects with missing assets",
		},
		{
			query: `SELECT COUNT(*) FROM transactions
				WHERE project_id IS NOT NULL
				  AND project_id NOT IN (SELECT id FROM projects)`,
			message: "found %d transactions with missing projects",
		},
		{
			query: `SELECT COUNT(*) FROM transactions
				WHERE asset_id IS NOT NULL
				  AND asset_id NOT IN (SELECT id FROM assets)`,
			message: "found %d transactions with missing assets",
		},
	}
	for _, check := range orphanChecks {
		var orphans int64
		if err := dst.GetContext(ctx, &orphans, check.query); err != nil {
			return fmt.Errorf("failed to run integrity check: %w", err)
		}
		if orphans > 0 {
			result = multierror.Append(result, fmt.Errorf(check.message, orphans))
		}
	}

	return result.ErrorOrNil()
}
