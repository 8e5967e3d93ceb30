// Package logging はアプリケーション共通の構造化ロガーを提供します。
package logging

import (
	"context"
	"io"
	"log/slog"
)

// Logger はコンテキスト付きの構造化ロガーです。
// 可変長引数はキーと値の組として解釈されます。
//
//	log.Info(ctx, "user registered", "user_id", id)
type Logger interface {
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)
	With(args ...any) Logger
}

// New は Gin のモードに合わせたロガーを作成します。
// release モードでは JSON、それ以外ではテキスト形式で出力します。
func New(w io.Writer, ginMode string) Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var h slog.Handler
	if ginMode == "release" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		opts.Level = slog.LevelDebug
		h = slog.NewTextHandler(w, opts)
	}
	return NewSlogLogger(slog.New(h))
}

// Discard は何も出力しないロガーです。テストで使います。
func Discard() Logger {
	return NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}
