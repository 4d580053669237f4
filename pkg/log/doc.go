/*
Package log provides structured logging for the client core using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("transport")               │          │
	│  │  - WithSessionID("session-abc123")          │          │
	│  │  - WithFileID("file-xyz")                   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "transport",                │          │
	│  │    "time": "2026-08-01T10:30:00Z",         │          │
	│  │    "message": "stream opened"               │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  10:30AM INF stream opened component=transport │      │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithSessionID: Add mount session ID context
  - WithFileID: Add file ID context

# Usage

Initializing the Logger:

	import "github.com/cuemby/oneclient/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Simple Logging:

	log.Info("session established")
	log.Debug("checking attribute cache")
	log.Warn("handshake retry")
	log.Error("failed to dial provider")
	log.Fatal("cannot start without a certificate") // Exits process

Structured Logging:

	log.Logger.Info().
		Str("session_id", "session-123").
		Int("streams", 3).
		Msg("transport pool ready")

	log.Logger.Error().
		Err(err).
		Str("file_id", "file-abc").
		Msg("attribute renewal failed")

Component Loggers:

	transportLog := log.WithComponent("transport")
	transportLog.Info().Msg("pool dialed")
	transportLog.Debug().Str("stream_id", "1").Msg("stream opened")

	fileLog := log.WithComponent("events").
		With().Str("session_id", "session-abc").
		Str("file_id", "file-123").Logger()
	fileLog.Info().Msg("flushing pending writes")

# Integration Points

This package integrates with:

  - pkg/transport: Logs failed sends and replays, and the end of a pooled
    connection's receive loop
  - pkg/auth: Logs failed handshake sends and token refresh outcomes
  - pkg/metacache: Logs failed location renewals
  - pkg/events: Logs idle/active transitions of the event engine
  - pkg/scheduler: Logs recovered task panics

# Security

Log Content:
  - Never log secrets or sensitive data
  - Redact tokens, passwords, certificate key material
  - Use typed fields (.Str, .Int) for user-controlled data, never string
    concatenation, to avoid log injection

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
*/
package log
