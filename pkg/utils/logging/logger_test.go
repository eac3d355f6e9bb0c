package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/placeset/pkg/utils/logging"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input string
		level slog.Level
		fails bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"Warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			level, err := logging.ParseLevel(tc.input)
			if tc.fails {
				gt.Error(t, err)
				return
			}
			gt.NoError(t, err)
			gt.Equal(t, level, tc.level)
		})
	}
}

func TestNewFiltersByLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New(slog.LevelWarn, buf)

	logger.Info("acquired 20 places")
	logger.Warn("provider call failed")

	output := buf.String()
	gt.S(t, output).NotContains("acquired 20 places")
	gt.S(t, output).Contains("provider call failed")
}

func TestNewExpandsGoerrValues(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New(slog.LevelInfo, buf)

	err := goerr.New("legacy protocol exhausted", goerr.V("status", 429))
	logger.Error("fetch failed", "error", err)

	output := buf.String()
	gt.S(t, output).Contains("legacy protocol exhausted")
	gt.S(t, output).Contains("429")
}

func TestWithAttrs(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := logging.With(context.Background(), logging.New(slog.LevelDebug, buf))

	ctx = logging.WithAttrs(ctx, "run_id", "run-1")
	logging.From(ctx).Info("combined cache hit")

	output := buf.String()
	gt.S(t, output).Contains("combined cache hit")
	gt.S(t, output).Contains("run-1")
}

func TestFromUsesDefault(t *testing.T) {
	original := logging.Default()
	defer logging.SetDefault(original)

	buf := &bytes.Buffer{}
	custom := logging.New(slog.LevelWarn, buf)
	logging.SetDefault(custom)

	retrieved := logging.From(context.Background())
	gt.Equal(t, retrieved, custom)

	retrieved.Warn("warning from default")
	gt.S(t, buf.String()).Contains("warning from default")
}
