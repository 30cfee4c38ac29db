package callgrind

import (
	"bufio"
	"encoding/binary"
	"math"
	"os"

	apperrors "github.com/callgrind-index/pkg/errors"
	"github.com/callgrind-index/pkg/model"
)

// indexVersion is the only on-disk layout version this writer/reader pair
// understands.
const indexVersion = uint32(7)

const wordSize = 4

// WriteIndex serializes m to path in the version-7 binary layout:
// placeholder header, reserved offset table, per-function records in
// index order, then the trailing headers block, with the headersPos word
// and the offset table patched in after the fact.
//
// The file is written to a sibling .tmp path and renamed into place on
// success, so a failure mid-write never leaves a partial file at path
// (the Preprocessor is all-or-nothing).
func WriteIndex(path string, m *Model) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIoOpen, "creating index output", err)
	}

	if err := writeIndexTo(f, m); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return apperrors.Wrap(apperrors.CodeIoWrite, "closing index output", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return apperrors.Wrap(apperrors.CodeIoWrite, "finalizing index output", err)
	}
	return nil
}

func writeIndexTo(f *os.File, m *Model) error {
	w := bufio.NewWriterSize(f, 64*1024)
	n := len(m.Functions)

	// Placeholder header: version, headersPos (patched later), functionCount.
	if err := writeWords(w, indexVersion, 0, uint32(n)); err != nil {
		return err
	}
	// Reserved, zeroed offset table, patched after records are written.
	offsetTableStart := int64(12)
	if err := writeWords(w, make([]uint32, n)...); err != nil {
		return err
	}

	offsets := make([]uint32, n)
	pos := offsetTableStart + int64(n)*wordSize

	for i, rec := range m.Functions {
		offsets[i] = uint32(pos)
		written, err := writeFunctionRecord(w, rec)
		if err != nil {
			return err
		}
		pos += written
	}

	if err := w.Flush(); err != nil {
		return apperrors.Wrap(apperrors.CodeIoWrite, "flushing function records", err)
	}

	headersPos := uint32(pos)
	for _, line := range m.Headers.Lines {
		nw, err := f.WriteString(line + "\n")
		if err != nil {
			return apperrors.Wrap(apperrors.CodeIoWrite, "writing headers block", err)
		}
		pos += int64(nw)
	}

	if _, err := f.Seek(4, 0); err != nil {
		return apperrors.Wrap(apperrors.CodeIoWrite, "seeking to patch headersPos", err)
	}
	if err := binary.Write(f, binary.LittleEndian, headersPos); err != nil {
		return apperrors.Wrap(apperrors.CodeIoWrite, "patching headersPos", err)
	}

	if _, err := f.Seek(offsetTableStart, 0); err != nil {
		return apperrors.Wrap(apperrors.CodeIoWrite, "seeking to patch offset table", err)
	}
	if err := binary.Write(f, binary.LittleEndian, offsets); err != nil {
		return apperrors.Wrap(apperrors.CodeIoWrite, "patching offset table", err)
	}

	return nil
}

// writeFunctionRecord writes one per-function record and returns the number
// of bytes written, for offset bookkeeping by the caller.
func writeFunctionRecord(w *bufio.Writer, rec *model.FunctionRecord) (int64, error) {
	selfCost, err := narrowCost(rec.SummedSelfCost)
	if err != nil {
		return 0, err
	}
	inclCost, err := narrowCost(rec.SummedInclusiveCost)
	if err != nil {
		return 0, err
	}
	invocations, err := narrowCost(rec.InvocationCount)
	if err != nil {
		return 0, err
	}

	calledFrom := flattenEdges(rec.CalledFrom)
	subCalls := flattenEdges(rec.SubCalls)

	if err := writeWords(w, rec.Line, selfCost, inclCost, invocations,
		uint32(len(calledFrom)), uint32(len(subCalls))); err != nil {
		return 0, err
	}
	n := int64(6 * wordSize)

	for _, e := range calledFrom {
		cost, err := narrowCost(e.edge.SummedCallCost)
		if err != nil {
			return 0, err
		}
		if err := writeWords(w, e.key.Index, e.key.Line, uint32(e.edge.CallCount), cost); err != nil {
			return 0, err
		}
		n += 4 * wordSize
	}
	for _, e := range subCalls {
		cost, err := narrowCost(e.edge.SummedCallCost)
		if err != nil {
			return 0, err
		}
		if err := writeWords(w, e.key.Index, e.key.Line, uint32(e.edge.CallCount), cost); err != nil {
			return 0, err
		}
		n += 4 * wordSize
	}

	fn, err := writeNewlineString(w, rec.Filename)
	if err != nil {
		return 0, err
	}
	n += fn
	nm, err := writeNewlineString(w, rec.Name)
	if err != nil {
		return 0, err
	}
	n += nm

	return n, nil
}

type keyedEdge struct {
	key  model.EdgeKey
	edge *model.CallEdge
}

// flattenEdges orders a map's entries deterministically (by index, then by
// line) so that repeated writes of the same model produce byte-identical
// output; map iteration order is not otherwise stable.
func flattenEdges(edges map[model.EdgeKey]*model.CallEdge) []keyedEdge {
	out := make([]keyedEdge, 0, len(edges))
	for k, v := range edges {
		out = append(out, keyedEdge{key: k, edge: v})
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && lessEdgeKey(out[j].key, out[j-1].key); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func lessEdgeKey(a, b model.EdgeKey) bool {
	if a.Index != b.Index {
		return a.Index < b.Index
	}
	return a.Line < b.Line
}

// narrowCost saturates a 64-bit accumulator to the on-disk 32-bit word;
// overflow is surfaced rather than silently truncated.
func narrowCost(v uint64) (uint32, error) {
	if v > math.MaxUint32 {
		return math.MaxUint32, ErrCostOverflow
	}
	return uint32(v), nil
}

func writeWords(w writerAt, words ...uint32) error {
	for _, word := range words {
		if err := binary.Write(w, binary.LittleEndian, word); err != nil {
			return apperrors.Wrap(apperrors.CodeIoWrite, "writing word", err)
		}
	}
	return nil
}

// writerAt is the subset of io.Writer both *bufio.Writer and *os.File
// satisfy; binary.Write only needs io.Writer, this alias just documents
// intent at call sites that pass either.
type writerAt = interface {
	Write(p []byte) (int, error)
}

func writeNewlineString(w *bufio.Writer, s string) (int64, error) {
	n, err := w.WriteString(s)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeIoWrite, "writing string field", err)
	}
	if err := w.WriteByte('\n'); err != nil {
		return 0, apperrors.Wrap(apperrors.CodeIoWrite, "writing string terminator", err)
	}
	return int64(n + 1), nil
}
