// Package jobmonlog is the ambient structured-logging package shared by
// every Jobmon binary. Grounded directly on cuemby-warren's pkg/log: same
// global-logger + Init(Config) + With* child-logger shape, with the child
// keys generalized from node/service/container identifiers to Jobmon's own
// (workflow, workflow-run, task, task instance, distributor).
package jobmonlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance, configured once at process start by
// Init and read thereafter by every package via the With* helpers.
var Logger zerolog.Logger

type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger. Call once at process start.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

func WithWorkflowID(id int64) zerolog.Logger {
	return Logger.With().Int64("workflow_id", id).Logger()
}

func WithWorkflowRunID(id int64) zerolog.Logger {
	return Logger.With().Int64("workflow_run_id", id).Logger()
}

func WithTaskID(id int64) zerolog.Logger {
	return Logger.With().Int64("task_id", id).Logger()
}

func WithTaskInstanceID(id int64) zerolog.Logger {
	return Logger.With().Int64("task_instance_id", id).Logger()
}

func WithDistributorID(clusterID int64, distributorInstanceID int64) zerolog.Logger {
	return Logger.With().
		Int64("cluster_id", clusterID).
		Int64("distributor_instance_id", distributorInstanceID).
		Logger()
}

// LogContextHeader is the HTTP header internal/requester attaches and
// internal/api's middleware reads to merge a client's structured-log
// context into the server's request-scoped logger (spec.md §6:
// "Client-supplied X-Server-Structlog-Context ... is merged into server
// log context for request tracing").
const LogContextHeader = "X-Server-Structlog-Context"

// WithLogContext merges a client-supplied structured-log context map into
// a child logger.
func WithLogContext(ctx map[string]string) zerolog.Logger {
	l := Logger.With()
	for k, v := range ctx {
		l = l.Str(k, v)
	}
	return l.Logger()
}

func Info(msg string)  { Logger.Info().Msg(msg) }
func Debug(msg string) { Logger.Debug().Msg(msg) }
func Warn(msg string)  { Logger.Warn().Msg(msg) }
func Error(msg string) { Logger.Error().Msg(msg) }

func Errorf(msg string, err error) { Logger.Error().Err(err).Msg(msg) }
func Fatal(msg string)             { Logger.Fatal().Msg(msg) }
