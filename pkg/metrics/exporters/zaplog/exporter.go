// Package zaplog exports opencensus views to a zap logger.
package zaplog

import (
	"go.opencensus.io/stats/view"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var _ view.Exporter = &Exporter{}

// Exporter logs view data
type Exporter struct {
	l     *zap.Logger
	level zapcore.Level
}

// Option for the exporter
type Option func(*Exporter)

// WithLevel sets the level at which views are logged. The default is info.
func WithLevel(level zapcore.Level) Option {
	return func(e *Exporter) {
		e.level = level
	}
}

// NewExporter builds an opencensus exporter logging to l
func NewExporter(l *zap.Logger, opts ...Option) *Exporter {
	if l == nil {
		l = zap.NewNop()
	}
	e := &Exporter{l: l, level: zapcore.InfoLevel}
	for _, apply := range opts {
		apply(e)
	}
	return e
}

// ExportView logs one entry per row of the view
func (e *Exporter) ExportView(viewData *view.Data) {
	if viewData == nil || viewData.View == nil {
		return
	}
	for _, row := range viewData.Rows {
		fields := make([]zap.Field, 0, len(row.Tags)+2)
		fields = append(fields, zap.String("view", viewData.View.Name))
		for _, t := range row.Tags {
			fields = append(fields, zap.String(t.Key.Name(), t.Value))
		}
		fields = append(fields, zap.Any("data", row.Data))
		if ce := e.l.Check(e.level, "metrics"); ce != nil {
			ce.Write(fields...)
		}
	}
}
