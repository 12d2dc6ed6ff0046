package utils

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

var (
	loggerOnce sync.Once
	logger     *slog.Logger
)

// stackTracer is satisfied by errors created with mdobak/go-xerrors.
type stackTracer interface {
	StackTrace() []uintptr
}

type stackFrame struct {
	Func   string `json:"func"`
	Source string `json:"source"`
	Line   int    `json:"line"`
}

func marshalStack(err error) []stackFrame {
	st, ok := err.(stackTracer)
	if !ok {
		return nil
	}

	trace := st.StackTrace()
	frames := runtime.CallersFrames(trace)

	var out []stackFrame
	for {
		frame, more := frames.Next()
		out = append(out, stackFrame{
			Func:   filepath.Base(frame.Function),
			Source: filepath.Join(filepath.Base(filepath.Dir(frame.File)), filepath.Base(frame.File)),
			Line:   frame.Line,
		})
		if !more {
			break
		}
	}
	return out
}

func fmtErr(err error) slog.Value {
	values := []slog.Attr{slog.String("msg", err.Error())}
	if frames := marshalStack(err); frames != nil {
		values = append(values, slog.Any("trace", frames))
	}
	return slog.GroupValue(values...)
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindAny {
		if err, ok := a.Value.Any().(error); ok {
			a.Value = fmtErr(err)
		}
	}
	return a
}

// GetLogger returns the shared JSON logger. Errors wrapped with
// go-xerrors are rendered with their stack traces.
func GetLogger() *slog.Logger {
	loggerOnce.Do(func() {
		handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			ReplaceAttr: replaceAttr,
		})
		logger = slog.New(handler)
	})
	return logger
}
