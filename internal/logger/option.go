package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// coreWithLevel pins a wrapped zapcore.Core to its own minimum level.
type coreWithLevel struct {
	zapcore.Core

	// level is the minimum level this core lets through.
	level zapcore.Level
}

// Enabled reports whether l passes the pinned level.
func (c *coreWithLevel) Enabled(l zapcore.Level) bool {
	return c.level.Enabled(l)
}

// Check adds the core to ce only when the entry passes the pinned level.
//
//nolint:gocritic // AddCore requires ent to be passed by value.
func (c *coreWithLevel) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}

	return ce
}

// With keeps the pinned level on derived cores.
//
//nolint:ireturn // zapcore.Core is the interface zap expects back.
func (c *coreWithLevel) With(fields []zapcore.Field) zapcore.Core {
	return &coreWithLevel{
		Core:  c.Core.With(fields),
		level: c.level,
	}
}

// WithLevel returns an option that pins a logger to lvl regardless of the
// level of the core it wraps. The executor uses it to filter control tool
// output independently of the level of the rest of the program.
//
//nolint:ireturn // zap.Option is the interface zap expects.
func WithLevel(lvl zapcore.Level) zap.Option {
	return zap.WrapCore(
		func(core zapcore.Core) zapcore.Core {
			return &coreWithLevel{Core: core, level: lvl}
		})
}
