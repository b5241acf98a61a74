package connector

import (
	"context"
	"fmt"

	"github.com/cdcbridge/synchdb/pkg/synchdb/apply"
	"github.com/cdcbridge/synchdb/pkg/synchdb/convert"
	"github.com/cdcbridge/synchdb/pkg/synchdb/event"
)

// convertAndApplyDDL runs convert.ConvertDDL then submits the resulting
// SQL through applier.ApplyDDL, building the attribute mappings the
// applier records on success (spec.md §4.H).
func convertAndApplyDDL(ctx context.Context, ddl *event.Ddl, c *Connector, applier *apply.Applier) (*convert.DDLResult, error) {
	result, err := convert.ConvertDDL(ctx, ddl, c.rules, c.cache, c.cfg.Kind, c.cfg.UseDB)
	if err != nil {
		return nil, err
	}

	mappings := make([]apply.AttrMapping, 0, len(ddl.Columns))
	for i, col := range ddl.Columns {
		mappings = append(mappings, apply.AttrMapping{
			DestAttnum: i + 1,
			RemoteID:   ddl.SourceID,
			RemoteName: col.Name,
			RemoteType: col.RemoteType,
		})
	}

	if err := applier.ApplyDDL(ctx, c.cfg.Name, string(c.cfg.Kind), result.SQL, mappings); err != nil {
		return nil, fmt.Errorf("apply ddl: %w", err)
	}
	return result, nil
}

// convertAndApplyDML runs convert.ConvertDML then submits the resulting
// statement through applier.ApplyDML.
func convertAndApplyDML(ctx context.Context, dml *event.Dml, c *Connector, applier *apply.Applier) error {
	stmt, err := convert.ConvertDML(dml, c.cfg.Mode, c.rules, c.evaluator)
	if err != nil {
		return err
	}
	if err := applier.ApplyDML(ctx, stmt, byte(dml.Op)); err != nil {
		return fmt.Errorf("apply dml: %w", err)
	}
	return nil
}
