package record

import "log/slog"

// Severity codes are numeric and monotonic with severity. The spacing leaves
// room for caller-defined intermediate levels.
const (
	LevelDebug    = 10
	LevelInfo     = 20
	LevelWarning  = 30
	LevelError    = 40
	LevelCritical = 50
)

// LevelName derives the human-readable label for a severity code. Codes
// between two named levels report the floor name.
func LevelName(level int) string {
	switch {
	case level >= LevelCritical:
		return "CRITICAL"
	case level >= LevelError:
		return "ERROR"
	case level >= LevelWarning:
		return "WARNING"
	case level >= LevelInfo:
		return "INFO"
	case level >= LevelDebug:
		return "DEBUG"
	default:
		return "NOTSET"
	}
}

// FromSlogLevel maps a slog.Level onto the severity code scale.
func FromSlogLevel(l slog.Level) int {
	switch {
	case l >= slog.LevelError+4:
		return LevelCritical
	case l >= slog.LevelError:
		return LevelError
	case l >= slog.LevelWarn:
		return LevelWarning
	case l >= slog.LevelInfo:
		return LevelInfo
	default:
		return LevelDebug
	}
}

// ToSlogLevel maps a severity code back onto slog's scale.
func ToSlogLevel(level int) slog.Level {
	switch {
	case level >= LevelError:
		return slog.LevelError
	case level >= LevelWarning:
		return slog.LevelWarn
	case level >= LevelInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
