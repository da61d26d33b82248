package main

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/kittclouds/karta/internal/engine"
	"github.com/kittclouds/karta/internal/registry"
	"github.com/kittclouds/karta/internal/settings"
	"github.com/kittclouds/karta/internal/store"
	kerr "github.com/kittclouds/karta/pkg/errors"
)

// newLogger builds the slog logger described by the log config. The
// engine's critical level prints as CRITICAL.
func newLogger(level, format string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.LevelKey {
				if l, ok := attr.Value.Any().(slog.Level); ok && l >= engine.LevelCritical {
					attr.Value = slog.StringValue("CRITICAL")
				}
			}
			return attr
		},
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openGateway opens the configured storage backend.
func openGateway(backend, dsn string) (store.Gateway, error) {
	switch backend {
	case "memory":
		return store.NewMemStore(), nil
	case "sqlite":
		return store.NewSQLiteStoreWithDSN(dsn)
	case "badger":
		return store.NewBadgerStore(dsn)
	default:
		return nil, kerr.New(kerr.CodeStoreBackendUnsupport, "unsupported storage backend", kerr.Field("backend", backend))
	}
}

// session is an open gateway plus an engine over it.
type session struct {
	gw     store.Gateway
	engine *engine.Engine
	logger *slog.Logger
}

func (a *app) open(errOut io.Writer) (*session, error) {
	logger := newLogger(a.cfg.Log.Level, a.cfg.Log.Format, errOut)

	gw, err := openGateway(a.cfg.Storage.Backend, a.cfg.Storage.DSN)
	if err != nil {
		return nil, err
	}

	opts := []engine.Option{engine.WithOptions(a.cfg.EngineOptions()), engine.WithLogger(logger)}
	if a.cfg.Canvas.PersistLastContext {
		st, err := settings.NewOSStore(a.cfg.Settings.Dir, logger)
		if err != nil {
			gw.Close()
			return nil, err
		}
		opts = append(opts, engine.WithSettings(st))
	}
	return &session{gw: gw, engine: engine.New(gw, registry.NewStatic(), opts...), logger: logger}, nil
}

// close saves the active context, drains pending writes and closes the
// gateway.
func (s *session) close(ctx context.Context) error {
	err := s.engine.Close(ctx)
	if cerr := s.gw.Close(); err == nil {
		err = cerr
	}
	return err
}

// resolveID turns a node handle (id or path) into an id.
func resolveID(ctx context.Context, gw store.Gateway, handle string) (string, error) {
	var (
		n   *store.DataNode
		err error
	)
	if store.IsPathHandle(handle) {
		n, err = gw.GetNodeByPath(ctx, handle)
	} else {
		n, err = gw.GetNode(ctx, handle)
	}
	if err != nil {
		return "", err
	}
	if n == nil {
		return "", kerr.New(kerr.CodeCLIInputInvalid, "node not found", kerr.Field("handle", handle))
	}
	return n.ID, nil
}
