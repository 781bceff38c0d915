package logger

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLogger(level Level) (*StdLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	l := NewStdLogger(false, level).WithOutput(log.New(buf, "", 0))
	return l, buf
}

func TestStdLogger_LevelFiltering(t *testing.T) {
	l, buf := newBufferedLogger(WarnLevel)

	l.Debug("debug %d", 1)
	l.Info("info %d", 2)
	l.Notice("notice %d", 3)
	assert.Empty(t, buf.String())

	l.Warn("warn %d", 4)
	l.Error("error %d", 5)
	assert.Contains(t, buf.String(), "[WARN]   warn 4")
	assert.Contains(t, buf.String(), "[ERROR]  error 5")
}

func TestStdLogger_ChainPrefix(t *testing.T) {
	l, buf := newBufferedLogger(DebugLevel)

	l.InfoWithChain(8453, "session %s started", "abc")
	assert.Equal(t, "[INFO]   [BASE]  session abc started\n", buf.String())

	buf.Reset()
	l.InfoWithChain(999999, "unknown chain")
	assert.Equal(t, "[INFO]   unknown chain\n", buf.String())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in       string
		expected Level
		isErr    bool
	}{
		{in: "debug", expected: DebugLevel},
		{in: "INFO", expected: InfoLevel},
		{in: " notice ", expected: NoticeLevel},
		{in: "warning", expected: WarnLevel},
		{in: "error", expected: ErrorLevel},
		{in: "verbose", isErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			level, err := ParseLevel(tt.in)
			if tt.isErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestEmptyLogger(t *testing.T) {
	var l Logger = &EmptyLogger{}
	assert.NotPanics(t, func() {
		l.Info("x")
		l.WarnWithChain(1, "y %d", 2)
	})
}
