package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/peterh/liner"
	"go.uber.org/zap"

	"github.com/calvinalkan/hiddenslot/internal/shell"
)

// REPL is the interactive command loop.
type REPL struct {
	session     *shell.Session
	out         io.Writer
	prompt      string
	historyPath string
	historySize int
	log         *zap.Logger
	liner       *liner.State
}

// Run starts the REPL loop. It returns when the user quits, sends EOF or
// Ctrl-C, or ctx is cancelled.
func (r *REPL) Run(ctx context.Context) error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.session.Complete)

	r.loadHistory()
	defer r.saveHistory()

	fprintln(r.out, "sloty - hidden slot shell")
	fprintln(r.out, "Type 'help' for available commands.")
	fprintln(r.out)

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := r.liner.Prompt(r.prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fprintln(r.out, "\nBye!")

				return nil
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		// Errors are already printed by the session.
		quit, _ := r.session.Exec(ctx, line)
		if quit {
			fprintln(r.out, "Bye!")

			return nil
		}
	}
}

func (r *REPL) loadHistory() {
	if r.historyPath == "" {
		return
	}

	f, err := os.Open(r.historyPath)
	if err != nil {
		if !os.IsNotExist(err) {
			r.log.Warn("cannot open history", zap.String("path", r.historyPath), zap.Error(err))
		}

		return
	}

	defer func() { _ = f.Close() }()

	n, err := r.liner.ReadHistory(f)
	if err != nil {
		r.log.Warn("cannot read history", zap.String("path", r.historyPath), zap.Error(err))

		return
	}

	r.log.Debug("history loaded", zap.Int("entries", n))
}

// saveHistory writes the last historySize entries atomically.
func (r *REPL) saveHistory() {
	if r.historyPath == "" || r.historySize == 0 {
		return
	}

	var buf bytes.Buffer

	_, err := r.liner.WriteHistory(&buf)
	if err != nil {
		r.log.Warn("cannot serialize history", zap.Error(err))

		return
	}

	data := trimHistory(buf.Bytes(), r.historySize)

	err = atomic.WriteFile(r.historyPath, bytes.NewReader(data))
	if err != nil {
		r.log.Warn("cannot write history", zap.String("path", r.historyPath), zap.Error(err))
	}
}

// trimHistory keeps the last limit lines of data.
func trimHistory(data []byte, limit int) []byte {
	lines := bytes.SplitAfter(data, []byte("\n"))
	if len(lines) > 0 && len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}

	if len(lines) <= limit {
		return data
	}

	return bytes.Join(lines[len(lines)-limit:], nil)
}
