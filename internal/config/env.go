package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"8700"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".agentgate/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"agentgate/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
}

type GovernanceEnv struct {
	ApprovalTTL         time.Duration `envconfig:"APPROVAL_TTL" default:"5m"`
	MaxEngines          int           `envconfig:"MAX_ENGINES" default:"4"`
	ExecutorMaxAttempts uint64        `envconfig:"EXECUTOR_MAX_ATTEMPTS" default:"3"`
	OrgScope            string        `envconfig:"ORG_SCOPE" default:""`
	// OverridesDir, when set, is watched for policy override edits so the
	// resolver cache invalidates without a restart.
	OverridesDir string `envconfig:"OVERRIDES_DIR" default:""`
	// Executor selects what allowed actions run against: "log" (dry run)
	// or "shell".
	Executor string `envconfig:"EXECUTOR" default:"log"`
	// WorkDir is the working directory for the shell executor.
	WorkDir string `envconfig:"WORK_DIR" default:"."`
}

type VAPIDEnv struct {
	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDContact    string `envconfig:"VAPID_CONTACT" default:"mailto:ops@example.com"`
}

type Env struct {
	BaseEnv
	StorageEnv
	GovernanceEnv
	VAPIDEnv
}

const namespace = "AGENTGATE"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func BaseEnvFromEnv(env *Env) *BaseEnv {
	return &env.BaseEnv
}

func StorageEnvFromEnv(env *Env) *StorageEnv {
	return &env.StorageEnv
}

func GovernanceEnvFromEnv(env *Env) *GovernanceEnv {
	return &env.GovernanceEnv
}

func VAPIDEnvFromEnv(env *Env) *VAPIDEnv {
	return &env.VAPIDEnv
}
