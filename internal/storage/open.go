package storage

import (
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"

	logx "missionctl/pkg/logx"
)

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, ErrDisabled
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.Newf("unknown storage driver: %s", driver)
	}
}

var collectionRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

func checkCollection(name string) error {
	if !collectionRe.MatchString(name) {
		return errors.Newf("invalid collection name %q", name)
	}
	return nil
}
