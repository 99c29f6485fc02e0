package log

import (
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// emojiMap maps log "type" fields to console emoji. Logs carrying a type
// field (added by the LogHelper convenience methods) get the matching emoji
// prefix when the console encoder is active.
var emojiMap = map[string]string{
	"probe":        "🩺",
	"recovery":     "🛠️",
	"rollback":     "⏪",
	"monitor":      "🛰️",
	"quota":        "🚦",
	"breaker":      "🔌",
	"booking":      "🧳",
	"rotation":     "🔄",
	"escalation":   "📣",
	"request":      "🌐",
	"success":      "✅",
	"error":        "❌",
	"warning":      "⚠️",
	"database":     "💾",
	"redis":        "📦",
	"startup":      "🚀",
	"audit":        "📋",
	"slow_request": "🐌",
}

// statusEmoji picks an emoji for an HTTP status code.
func statusEmoji(status int) string {
	if status >= 500 {
		return "🔴"
	} else if status >= 400 {
		return "🟠"
	} else if status >= 300 {
		return "🟡"
	}
	return "🟢"
}

// EmojiConsoleEncoder wraps Zap's ConsoleEncoder and prefixes messages with
// an emoji derived from the log's type field or HTTP status code.
type EmojiConsoleEncoder struct {
	zapcore.Encoder
	config zapcore.EncoderConfig
}

// NewEmojiConsoleEncoder creates a console encoder with emoji prefixes.
func NewEmojiConsoleEncoder(cfg zapcore.EncoderConfig) zapcore.Encoder {
	return &EmojiConsoleEncoder{
		Encoder: zapcore.NewConsoleEncoder(cfg),
		config:  cfg,
	}
}

// EncodeEntry encodes a log entry, injecting the emoji prefix.
func (enc *EmojiConsoleEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	var logType string
	var status int64

	for _, field := range fields {
		if field.Key == "type" && field.Type == zapcore.StringType {
			logType = field.String
		} else if field.Key == "status" && (field.Type == zapcore.Int64Type || field.Type == zapcore.Int32Type) {
			status = field.Integer
		}
	}

	// Priority: HTTP status code, then type mapping, then log level.
	emoji := ""
	if status > 0 {
		emoji = statusEmoji(int(status))
	} else if logType != "" {
		if e, ok := emojiMap[logType]; ok {
			emoji = e
		}
	}

	if emoji == "" {
		switch entry.Level {
		case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
			emoji = "❌"
		case zapcore.WarnLevel:
			emoji = "⚠️"
		case zapcore.InfoLevel:
			emoji = "ℹ️"
		case zapcore.DebugLevel:
			emoji = "🐛"
		}
	}

	if emoji != "" {
		entry.Message = emoji + " " + entry.Message
	}

	return enc.Encoder.EncodeEntry(entry, fields)
}

// Clone clones the encoder (used internally by Zap).
func (enc *EmojiConsoleEncoder) Clone() zapcore.Encoder {
	return &EmojiConsoleEncoder{
		Encoder: enc.Encoder.Clone(),
		config:  enc.config,
	}
}
