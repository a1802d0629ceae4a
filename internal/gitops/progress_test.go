package gitops

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	phase   string
	percent uint32
	objects *uint64
	total   *uint64
}

func TestProgressWriter_ParsesPercentLine(t *testing.T) {
	var calls []recordedCall
	pw := newProgressWriter(func(phase string, percent uint32, objects, bytesCount, totalHint *uint64) bool {
		calls = append(calls, recordedCall{phase: phase, percent: percent, objects: objects, total: totalHint})
		return true
	})

	_, err := pw.Write([]byte("Receiving objects:  45% (450/1000)\r"))
	require.NoError(t, err)

	require.Len(t, calls, 1)
	require.Equal(t, "Receiving objects", calls[0].phase)
	require.EqualValues(t, 45, calls[0].percent)
	require.EqualValues(t, 450, *calls[0].objects)
	require.EqualValues(t, 1000, *calls[0].total)
}

func TestProgressWriter_StopsAfterAbort(t *testing.T) {
	calls := 0
	pw := newProgressWriter(func(string, uint32, *uint64, *uint64, *uint64) bool {
		calls++
		return false
	})

	_, _ = pw.Write([]byte("Counting objects: 10% (1/10)\rCounting objects: 20% (2/10)\r"))
	require.Equal(t, 1, calls, "progress stops reporting once the callback asks to abort")
}

func TestProgressWriter_IgnoresBlankLines(t *testing.T) {
	calls := 0
	pw := newProgressWriter(func(string, uint32, *uint64, *uint64, *uint64) bool {
		calls++
		return true
	})

	_, _ = pw.Write([]byte("\r\n\r\n"))
	require.Equal(t, 0, calls)
}

func TestProgressWriter_NonPercentLineStillReports(t *testing.T) {
	var got recordedCall
	pw := newProgressWriter(func(phase string, percent uint32, objects, bytesCount, totalHint *uint64) bool {
		got = recordedCall{phase: phase, percent: percent}
		return true
	})

	_, _ = pw.Write([]byte("Enumerating objects: 5, done.\r"))
	require.Equal(t, "Enumerating objects: 5, done.", got.phase)
}
