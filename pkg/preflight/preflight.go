// Package preflight probes whether a job's staging location is usable
// before artifacts are uploaded to it.
package preflight

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/3leaps/streamctl/pkg/output"
	"github.com/3leaps/streamctl/pkg/provider"
	"github.com/3leaps/streamctl/pkg/workspace"
)

// Mode defines how aggressive preflight checks are.
type Mode string

const (
	ModePlanOnly   Mode = "plan-only"
	ModeReadSafe   Mode = "read-safe"
	ModeWriteProbe Mode = "write-probe"
)

// ParseMode accepts the three mode names.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModePlanOnly, ModeReadSafe, ModeWriteProbe:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported preflight mode %q", s)
	}
}

// Capability names are stable strings used in reports.
const (
	CapLibList  = "lib.list"
	CapLibHead  = "lib.head"
	CapLibWrite = "lib.write"
)

// probePrefix names write probes so a failed cleanup is recognizable.
const probePrefix = ".streamctl-preflight-"

// Result is the outcome of one capability check.
type Result struct {
	Capability string `json:"capability"`
	Allowed    bool   `json:"allowed"`
	Method     string `json:"method"`
	ErrorCode  string `json:"error_code,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// Report collects the checks run against one application's lib directory.
type Report struct {
	AppID   string   `json:"app_id"`
	Mode    Mode     `json:"mode"`
	Storage string   `json:"storage"`
	Lib     string   `json:"lib"`
	Results []Result `json:"results"`
}

// Passed reports whether every check was allowed.
func (r *Report) Passed() bool {
	for _, res := range r.Results {
		if !res.Allowed {
			return false
		}
	}
	return true
}

func (r *Report) allow(capability, method string) {
	r.Results = append(r.Results, Result{Capability: capability, Allowed: true, Method: method})
}

func (r *Report) deny(capability, method string, err error) {
	r.Results = append(r.Results, Result{
		Capability: capability,
		Method:     method,
		ErrorCode:  output.ErrorCode(err),
		Detail:     err.Error(),
	})
}

// Lib checks t's lib directory on the backend its mode deploys from.
//
// Ordering (fail-fast): list → head of a random key → write probe (put
// then delete a zero-byte object, write-probe mode only). Plan-only
// resolves the location without touching the backend.
func Lib(ctx context.Context, stager workspace.Stager, t workspace.Target, mode Mode) (*Report, error) {
	rec := &Report{AppID: t.WorkspaceID(), Mode: mode, Results: []Result{}}

	loc, err := stager.LibLocation(t)
	if err != nil {
		return rec, err
	}
	rec.Storage = loc.Storage.String()
	rec.Lib = loc.Path

	if mode == ModePlanOnly {
		return rec, nil
	}

	prefix := loc.Key + "/"
	method := fmt.Sprintf("List(prefix=%q,maxKeys=1)", prefix)
	if _, err := loc.Backend.List(ctx, provider.ListOptions{Prefix: prefix, MaxKeys: 1}); err != nil {
		rec.deny(CapLibList, method, err)
		return rec, err
	}
	rec.allow(CapLibList, method)

	probeKey := prefix + probePrefix + uuid.NewString()
	if _, err := loc.Backend.Head(ctx, probeKey); err != nil && !provider.IsNotFound(err) {
		rec.deny(CapLibHead, "Head(random)", err)
		return rec, err
	}
	rec.allow(CapLibHead, "Head(random)")

	if mode != ModeWriteProbe {
		return rec, nil
	}
	return rec, writeProbe(ctx, rec, loc.Backend, probeKey)
}

func writeProbe(ctx context.Context, rec *Report, backend provider.Provider, key string) error {
	const method = "PutObject+DeleteObject"
	putter, canPut := backend.(provider.ObjectPutter)
	deleter, canDelete := backend.(provider.ObjectDeleter)
	if !canPut || !canDelete {
		err := fmt.Errorf("%s backend: %w", backend.Type(), provider.ErrUnsupported)
		rec.deny(CapLibWrite, method, err)
		return err
	}

	if err := putter.PutObject(ctx, key, bytes.NewReader(nil), 0); err != nil {
		rec.deny(CapLibWrite, method, err)
		return err
	}
	// Remove even if ctx was cancelled after the put.
	if err := deleter.DeleteObject(context.WithoutCancel(ctx), key); err != nil {
		rec.deny(CapLibWrite, method, fmt.Errorf("probe %s left behind: %w", key, err))
		return err
	}
	rec.allow(CapLibWrite, method)
	return nil
}
