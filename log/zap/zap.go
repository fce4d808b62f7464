// Package zap adapts a *zap.Logger to blockcache.Logger.
package zap

import (
	"github.com/unkn0wn-root/blockcache"
	"go.uber.org/zap"
)

type ZapLogger struct{ L *zap.Logger }

var _ blockcache.Logger = ZapLogger{}

// New names the logger "blockcache".
func New(l *zap.Logger) ZapLogger { return ZapLogger{L: l.Named("blockcache")} }

func (z ZapLogger) Debug(msg string, f blockcache.Fields) { z.L.Debug(msg, zf(f)...) }
func (z ZapLogger) Info(msg string, f blockcache.Fields)  { z.L.Info(msg, zf(f)...) }
func (z ZapLogger) Warn(msg string, f blockcache.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z ZapLogger) Error(msg string, f blockcache.Fields) { z.L.Error(msg, zf(f)...) }

func zf(f blockcache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			out = append(out, zap.Error(err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}
