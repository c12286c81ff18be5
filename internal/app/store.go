package app

import (
	"github.com/cockroachdb/errors"

	"missionctl/internal/config"
	"missionctl/internal/storage"
	"missionctl/internal/task/jobs"
	"missionctl/internal/task/scheduler"
	logx "missionctl/pkg/logx"
)

// OpenJobStore opens only the job store described by the config at cfgPath,
// for one-shot CLI edits. A running server picks the edits up on its next
// reconciliation pass. The returned close func releases the storage.
func OpenJobStore(cfgPath string, log logx.Logger) (*jobs.Store, func() error, error) {
	cfg, err := config.NewConfigManager(cfgPath).Load()
	if err != nil {
		return nil, nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, err
	}
	sc, collection, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	st, err := storage.Open(sc, log)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open storage")
	}
	js := jobs.NewStore(st, collection, log)
	js.SetScheduleValidator(scheduler.ValidateExpr)
	return js, st.Close, nil
}
