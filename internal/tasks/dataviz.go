package tasks

import (
	"context"

	"github.com/mohammad-safakhou/climarisk/internal/dataviz"
	"github.com/mohammad-safakhou/climarisk/internal/executor"
	"github.com/mohammad-safakhou/climarisk/internal/planner"
	"github.com/mohammad-safakhou/climarisk/internal/taxonomy"
)

// Dataviz implements DATAVIZ. When "risques" is absent the risks found by the
// analyses of the optional "in" slot are used.
type Dataviz struct {
	Generator *dataviz.Generator
}

func (d *Dataviz) Type() planner.TaskType { return planner.DataViz }

func (d *Dataviz) Execute(ctx context.Context, run *executor.Run, args planner.Args) (any, error) {
	places, err := args.Strings("lieux")
	if err != nil {
		return nil, err
	}
	risks, err := args.StringsOr("risques", nil)
	if err != nil {
		return nil, err
	}
	levelName, err := args.StringOr("niveau", "")
	if err != nil {
		return nil, err
	}
	level, _ := taxonomy.ParseAdminLevel(levelName)
	if ref, ok := args.Ref(); ok && !args.Has("risques") {
		v, err := run.ReadOutput(ref)
		if err != nil {
			return nil, err
		}
		set, err := analysesOf(ref, v)
		if err != nil {
			return nil, err
		}
		risks = set.RiskNames()
	}
	return d.Generator.Generate(ctx, dataviz.Request{Risks: risks, Places: places, Level: level})
}
