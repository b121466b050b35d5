package output

import (
	"errors"

	"github.com/3leaps/streamctl/pkg/application"
	"github.com/3leaps/streamctl/pkg/workspace"
)

// Resolve builds the resolution record for app against ws. app is not
// modified. A mode without a storage type (LOCAL) and a missing project or
// module grouping leave the corresponding fields empty; any other failure
// is returned.
func Resolve(ws workspace.Workspace, app *application.Application) (*ResolutionRecord, error) {
	rec := &ResolutionRecord{
		AppID:   app.ID,
		JobName: app.JobName,
		Mode:    app.ExecutionMode.String(),
	}

	home, err := ws.HomeDirectory(app)
	if err != nil {
		return nil, err
	}
	rec.Home = home

	lib, err := ws.LibDirectory(app)
	if err != nil {
		return nil, err
	}
	rec.Lib = lib

	st, err := app.StorageType()
	switch {
	case err == nil:
		rec.Storage = st.String()
	case !errors.Is(err, workspace.ErrUnsupportedExecutionMode):
		return nil, err
	}

	dist, err := ws.DistDirectory(app)
	switch {
	case err == nil:
		rec.Dist = dist
	case !errors.Is(err, workspace.ErrIncompleteGrouping):
		return nil, err
	}

	snap := app.Snapshot()
	if err := snap.DeriveQueueRouting(); err != nil {
		return nil, err
	}
	rec.YarnQueue = snap.YarnQueue

	return rec, nil
}
