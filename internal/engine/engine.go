// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package engine wraps the czkawka_cli binary: it builds the argument list
// for a scan, runs the process, streams stderr progress lines to a callback,
// and decodes the JSON result document.
package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweepd/sweepd/internal/models"
)

// terminateGrace is how long a terminated process gets to exit cleanly
// before it is killed.
const terminateGrace = 5 * time.Second

// stderrTailLines caps how many trailing stderr lines are kept for error
// reporting.
const stderrTailLines = 20

// ExitError reports a non-zero engine exit.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("engine exited with code %d", e.Code)
}

// Runner executes the detection engine binary.
type Runner struct {
	binPath string
}

func NewRunner(binPath string) *Runner {
	return &Runner{binPath: binPath}
}

// Run executes the engine for the given scan and blocks until it exits.
// onProgress is invoked from a single goroutine, once per parsed stderr
// line. Cancelling ctx sends SIGTERM; if the process is still alive after
// the grace period it is killed. A cancelled run returns ctx.Err().
//
// Exit 0 with a missing or undecodable result document is a contract
// violation and returns an error; a well-formed empty document returns
// zero findings.
func (r *Runner) Run(ctx context.Context, scan *models.Scan, onProgress func(ProgressLine)) (*models.Findings, error) {
	resultFile, err := os.CreateTemp("", "sweepd-result-*.json")
	if err != nil {
		return nil, fmt.Errorf("create result file: %w", err)
	}
	resultPath := resultFile.Name()
	resultFile.Close()
	defer os.Remove(resultPath)

	args := BuildArgs(scan, resultPath)

	cmd := exec.CommandContext(ctx, r.binPath, args...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = terminateGrace

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	log.Debug().
		Str("scanID", scan.ID).
		Str("category", string(scan.Category)).
		Str("bin", r.binPath).
		Strs("args", args).
		Msg("Starting engine process")

	if err := cmd.Start(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("engine binary not found at %s", r.binPath)
		}
		return nil, fmt.Errorf("start engine: %w", err)
	}

	var tail []string
	scanner := bufio.NewScanner(stderrPipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line, ok := ParseProgressLine(scanner.Text())
		if !ok {
			continue
		}
		tail = append(tail, line.Stage)
		if len(tail) > stderrTailLines {
			tail = tail[1:]
		}
		if onProgress != nil {
			onProgress(line)
		}
	}
	if err := scanner.Err(); err != nil {
		// A line over the buffer cap stops the scanner; keep draining the
		// pipe so the process cannot block on a full stderr buffer.
		log.Warn().Err(err).Str("scanID", scan.ID).Msg("Stopped parsing engine stderr")
		_, _ = io.Copy(io.Discard, stderrPipe)
	}

	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		log.Debug().Str("scanID", scan.ID).Msg("Engine process cancelled")
		return nil, ctx.Err()
	}

	if waitErr != nil {
		code := -1
		if cmd.ProcessState != nil {
			code = cmd.ProcessState.ExitCode()
		}
		log.Debug().
			Str("scanID", scan.ID).
			Int("exitCode", code).
			Msg("Engine process exited with error")
		return nil, &ExitError{Code: code, Stderr: strings.Join(tail, "\n")}
	}

	raw, err := os.ReadFile(resultPath)
	if err != nil || len(bytes.TrimSpace(raw)) == 0 {
		// Older engine builds write the document to stdout instead.
		raw = stdout.Bytes()
	}

	findings, err := ParseResult(raw, scan.Category)
	if err != nil {
		if errors.Is(err, ErrEmptyResult) {
			return nil, errors.New("engine exited successfully without producing a result document")
		}
		return nil, fmt.Errorf("parse engine result: %w", err)
	}

	log.Debug().
		Str("scanID", scan.ID).
		Int("findings", findings.Count()).
		Msg("Engine process completed")

	return findings, nil
}
