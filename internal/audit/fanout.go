package audit

import (
	"context"
	"errors"
	"fmt"
)

// namedSink はエラー報告用の名前を持つSink。
type namedSink struct {
	name string
	sink Sink
}

// Fanout は複数のSinkへ順番に追記する。
// 一部のSinkが失敗しても残りのSinkへの追記は継続する。
type Fanout struct {
	sinks []namedSink
}

// NewFanout は空のFanoutを返す。
func NewFanout() *Fanout {
	return &Fanout{}
}

// Add は名前付きでSinkを追加する。
func (f *Fanout) Add(name string, sink Sink) *Fanout {
	f.sinks = append(f.sinks, namedSink{name: name, sink: sink})
	return f
}

// Len は登録済みSink数を返す。
func (f *Fanout) Len() int {
	return len(f.sinks)
}

// Append はSinkインターフェースを実装する。
// 失敗したSinkのエラーはerrors.Joinでまとめて返す。
func (f *Fanout) Append(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.sink.Append(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

// Close は停止処理を持つSinkを順に閉じ、キューに残ったレコードの配送を待つ。
func (f *Fanout) Close(ctx context.Context) error {
	var errs []error
	for _, s := range f.sinks {
		c, ok := s.sink.(interface{ Close(context.Context) error })
		if !ok {
			continue
		}
		if err := c.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}
