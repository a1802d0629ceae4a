package gitops

import (
	"bufio"
	"bytes"
	"regexp"
	"strconv"

	"github.com/gitmesh/gitmesh/internal/tasks"
)

// progressLine matches the sideband lines go-git's transports write for
// remote-side progress, e.g. "Receiving objects:  45% (450/1000)" or
// "Compressing objects: 100% (80/80), done.".
var progressLine = regexp.MustCompile(`^([A-Za-z ]+):\s+(\d+)%\s+\((\d+)/(\d+)\)`)

// progressWriter adapts go-git's io.Writer-based progress sideband into the
// registry's ProgressFunc, so Clone/Fetch/Push report through the same
// TaskProgress event path as every other operation (spec.md §4.3).
//
// go-git delivers each progress update as its own Write call (it flushes on
// every \r-terminated update), so a simple per-call scanner is sufficient;
// buffering across calls only matters for embedded newlines, which this
// still handles via bufio.Scanner's split function.
type progressWriter struct {
	progress tasks.ProgressFunc
	aborted  bool
}

func newProgressWriter(progress tasks.ProgressFunc) *progressWriter {
	return &progressWriter{progress: progress}
}

func (w *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	sc := bufio.NewScanner(bytes.NewReader(p))
	sc.Split(splitLinesAndCR)
	for sc.Scan() {
		w.handleLine(sc.Bytes())
	}
	return n, nil
}

func (w *progressWriter) handleLine(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}

	m := progressLine.FindSubmatch(line)
	if m == nil {
		w.abort(string(line), 0, nil, nil, nil)
		return
	}

	phase := string(bytes.TrimSpace(m[1]))
	percent, _ := strconv.ParseUint(string(m[2]), 10, 32)
	done, _ := strconv.ParseUint(string(m[3]), 10, 64)
	total, _ := strconv.ParseUint(string(m[4]), 10, 64)

	w.abort(phase, uint32(percent), &done, nil, &total)
}

// abort calls the underlying ProgressFunc and latches w.aborted once it
// returns false, so later Write calls short-circuit instead of continuing
// to report progress for an operation the caller already asked to cancel.
func (w *progressWriter) abort(phase string, percent uint32, objects, bytesCount, totalHint *uint64) bool {
	if w.aborted {
		return false
	}
	if !w.progress(phase, percent, objects, bytesCount, totalHint) {
		w.aborted = true
		return false
	}
	return true
}

// splitLinesAndCR is a bufio.SplitFunc that treats both '\n' and '\r' as
// line terminators, matching how Git's progress sideband overwrites a
// single terminal line with repeated '\r'-prefixed updates instead of
// appending new lines.
func splitLinesAndCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
