package storage

import (
	"errors"
	"strings"

	logx "kickbot/pkg/logx"
)

// Open initializes the store at cfg.Path, creating the file and schema if needed.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage.path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return openSQLite(cfg, log)
}
