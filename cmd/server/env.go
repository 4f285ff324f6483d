package main

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// serverEnv holds deployment switches read from STATIONIDLE_* variables.
type serverEnv struct {
	DeployEnv       string `env:"STATIONIDLE_DEPLOY_ENV"        envDefault:"dev"`
	EnableAdminHTTP *bool  `env:"STATIONIDLE_ENABLE_ADMIN_HTTP"`
	EnablePprofHTTP bool   `env:"STATIONIDLE_ENABLE_PPROF_HTTP" envDefault:"false"`
	IndexBackend    string `env:"STATIONIDLE_INDEX_BACKEND"     envDefault:"sqlite"`
	SnapshotQueue   int    `env:"STATIONIDLE_SNAPSHOT_QUEUE"    envDefault:"2"`

	Mirror mirrorEnv `envPrefix:"STATIONIDLE_MIRROR_"`
}

// mirrorEnv configures the optional object-store copy of snapshots, run
// archives and rotated logs. It is off unless ENDPOINT and BUCKET are set.
type mirrorEnv struct {
	Endpoint        string `env:"ENDPOINT"`
	Bucket          string `env:"BUCKET"`
	Region          string `env:"REGION"            envDefault:"auto"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	Prefix          string `env:"PREFIX"`
	Workers         int    `env:"WORKERS"           envDefault:"1"`
	Queue           int    `env:"QUEUE"             envDefault:"1024"`
	Logs            bool   `env:"LOGS"              envDefault:"true"`
}

func (m mirrorEnv) enabled() bool {
	return strings.TrimSpace(m.Endpoint) != "" && strings.TrimSpace(m.Bucket) != ""
}

func loadServerEnv() (serverEnv, error) {
	var cfg serverEnv
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.DeployEnv = strings.ToLower(strings.TrimSpace(cfg.DeployEnv))
	cfg.IndexBackend = strings.ToLower(strings.TrimSpace(cfg.IndexBackend))
	if cfg.SnapshotQueue <= 0 {
		cfg.SnapshotQueue = 2
	}
	return cfg, nil
}

// adminHTTPEnabled defaults to off in staging and production.
func (e serverEnv) adminHTTPEnabled() bool {
	if e.EnableAdminHTTP != nil {
		return *e.EnableAdminHTTP
	}
	switch e.DeployEnv {
	case "staging", "production":
		return false
	default:
		return true
	}
}
