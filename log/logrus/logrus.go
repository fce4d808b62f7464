// Package logrus adapts a *logrus.Entry to blockcache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"
	"github.com/unkn0wn-root/blockcache"
)

type LogrusLogger struct{ E *logrus.Entry }

var _ blockcache.Logger = LogrusLogger{}

func (l LogrusLogger) Debug(msg string, f blockcache.Fields) { l.with(f).Debug(msg) }
func (l LogrusLogger) Info(msg string, f blockcache.Fields)  { l.with(f).Info(msg) }
func (l LogrusLogger) Warn(msg string, f blockcache.Fields)  { l.with(f).Warn(msg) }
func (l LogrusLogger) Error(msg string, f blockcache.Fields) { l.with(f).Error(msg) }

// with maps the engine's "err" field onto logrus' error key.
func (l LogrusLogger) with(f blockcache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	lf := make(logrus.Fields, len(f))
	for k, v := range f {
		if k == "err" {
			k = logrus.ErrorKey
		}
		lf[k] = v
	}
	return l.E.WithFields(lf)
}
