// Package sloghooks logs engine hook events through log/slog, with sampling
// for the noisy ones and hashed storage keys.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/blockcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery     uint64
	StoreErrorEvery   uint64
	RenderFailedEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr     atomic.Uint64
	storeErrorCtr   atomic.Uint64
	renderFailedCtr atomic.Uint64
}

var _ blockcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("blockcache.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) StoreError(op, key string, err error) {
	if h.l == nil || !sample(h.opts.StoreErrorEvery, &h.storeErrorCtr) {
		return
	}
	h.l.Warn("blockcache.store_error",
		"op", op,
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) RenderFailed(blockID int64, typeName string, err error) {
	if h.l == nil || !sample(h.opts.RenderFailedEvery, &h.renderFailedCtr) {
		return
	}
	h.l.Error("blockcache.render_failed",
		"block_id", blockID,
		"type", typeName,
		"err", err)
}

func (h *Hooks) PreloadFailed(typeName string, blocks int, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("blockcache.preload_failed",
		"type", typeName,
		"blocks", blocks,
		"err", err)
}

func (h *Hooks) RendererUnavailable(typeName string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("blockcache.renderer_unavailable",
		"type", typeName,
		"err", err)
}

func (h *Hooks) GenBumpError(scope string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("blockcache.gen_bump_error",
		"scope", scope,
		"err", err)
}

func (h *Hooks) InvalidateOutage(scope string, bumpErr, delErr error) {
	if h.l == nil {
		return
	}
	h.l.Error("blockcache.invalidate_outage",
		"scope", scope,
		"bump_err", bumpErr,
		"del_err", delErr)
}
