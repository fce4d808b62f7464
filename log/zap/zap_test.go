package zap

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/blockcache"
)

func TestFieldsAndLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core))

	l.Warn("renderer unavailable, block skipped", blockcache.Fields{"block_id": int64(3), "err": errors.New("gone")})
	l.Debug("self-healed cache entry", nil)

	all := logs.All()
	if len(all) != 2 {
		t.Fatalf("entries=%d", len(all))
	}
	w := all[0]
	if w.Level != zapcore.WarnLevel || w.LoggerName != "blockcache" {
		t.Fatalf("entry=%+v", w.Entry)
	}
	ctx := w.ContextMap()
	if ctx["block_id"] != int64(3) || ctx["error"] != "gone" {
		t.Fatalf("fields=%v", ctx)
	}
}
