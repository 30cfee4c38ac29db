package index

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	apperrors "github.com/callgrind-index/pkg/errors"
)

// indexVersion is the only on-disk layout version this Reader understands.
const indexVersion = uint32(7)

// VersionError carries the version found in an index file's header
// alongside the version this Reader understands.
type VersionError struct {
	Found, Expected uint32
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("index version mismatch: found %d, expected %d", e.Found, e.Expected)
}

// FunctionInfo is the result of a functionInfo query.
type FunctionInfo struct {
	Filename               string
	FunctionName           string
	Line                   uint32
	SummedSelfCost         string
	SummedSelfCostRaw      uint64
	SummedInclusiveCost    string
	SummedInclusiveCostRaw uint64
	InvocationCount        uint32
	CalledFromInfoCount    uint32
	SubCallInfoCount       uint32
}

// EdgeInfo is the result of a calledFromInfo or subCallInfo query.
type EdgeInfo struct {
	FunctionNr        uint32
	Line              uint32
	CallCount         uint32
	SummedCallCost    string
	SummedCallCostRaw uint64
}

// Reader opens a binary index produced by internal/callgrind.WriteIndex and
// answers per-function queries against it via seek-based random access
// A Reader exclusively owns its underlying file handle
// for its lifetime; Close releases it. Reader is not safe for concurrent
// use; callers needing parallelism open independent Readers on independent
// file handles.
type Reader struct {
	f *os.File

	version       uint32
	headersPos    uint32
	functionCount uint32
	offsets       []uint32

	format CostFormat

	headers *headerCache
}

type headerCache struct {
	runs    uint64
	summary uint64
	values  map[string]string
}

// Open opens path for binary read and validates its version. On a version
// mismatch, no more than the first three words are read and the returned
// error is a *VersionError wrapped in an *apperrors.AppError with code
// CodeVersionMismatch.
func Open(path string, format CostFormat) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIoOpen, "opening index", err)
	}

	var header [3]uint32
	if err := binary.Read(f, binary.LittleEndian, &header); err != nil {
		f.Close()
		return nil, apperrors.Wrap(apperrors.CodeIoRead, "reading index header", err)
	}
	version, headersPos, functionCount := header[0], header[1], header[2]

	if version != indexVersion {
		f.Close()
		return nil, apperrors.Wrap(apperrors.CodeVersionMismatch, "index version mismatch",
			&VersionError{Found: version, Expected: indexVersion})
	}

	offsets := make([]uint32, functionCount)
	if functionCount > 0 {
		if err := binary.Read(f, binary.LittleEndian, offsets); err != nil {
			f.Close()
			return nil, apperrors.Wrap(apperrors.CodeIoRead, "reading function offset table", err)
		}
	}

	if format == nil {
		format = UsecFormat()
	}

	return &Reader{
		f:             f,
		version:       version,
		headersPos:    headersPos,
		functionCount: functionCount,
		offsets:       offsets,
		format:        format,
	}, nil
}

// SetCostFormat replaces the Reader's default cost format for subsequent
// queries. Useful when the format depends on data only available after
// opening, such as PercentFormat over the trace's summary total.
func (r *Reader) SetCostFormat(f CostFormat) {
	if f != nil {
		r.format = f
	}
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}

// FunctionCount returns the number of functions recorded in the index.
func (r *Reader) FunctionCount() uint32 {
	return r.functionCount
}

// recordHeader reads the fixed 6-word header of function i's record and
// returns its byte offset alongside the decoded fields.
func (r *Reader) recordHeader(i uint32) (offset int64, line, selfCost, inclCost, invocations, m, k uint32, err error) {
	if i >= r.functionCount {
		return 0, 0, 0, 0, 0, 0, 0, apperrors.Wrap(apperrors.CodeOutOfRange,
			fmt.Sprintf("function index %d out of range (count=%d)", i, r.functionCount), nil)
	}
	offset = int64(r.offsets[i])
	if _, err := r.f.Seek(offset, io.SeekStart); err != nil {
		return 0, 0, 0, 0, 0, 0, 0, apperrors.Wrap(apperrors.CodeIoRead, "seeking to function record", err)
	}
	var words [6]uint32
	if err := binary.Read(r.f, binary.LittleEndian, &words); err != nil {
		return 0, 0, 0, 0, 0, 0, 0, apperrors.Wrap(apperrors.CodeIoRead, "reading function record header", err)
	}
	return offset, words[0], words[1], words[2], words[3], words[4], words[5], nil
}

// FunctionInfo returns function i's metadata, with cost fields formatted
// per the Reader's configured CostFormat.
func (r *Reader) FunctionInfo(i uint32) (FunctionInfo, error) {
	offset, line, selfCost, inclCost, invocations, m, k, err := r.recordHeader(i)
	if err != nil {
		return FunctionInfo{}, err
	}

	if _, err := r.f.Seek(offset+int64(4*(6+4*(m+k))), io.SeekStart); err != nil {
		return FunctionInfo{}, apperrors.Wrap(apperrors.CodeIoRead, "seeking to function strings", err)
	}
	br := bufio.NewReader(r.f)
	filename, err := readNewlineString(br)
	if err != nil {
		return FunctionInfo{}, err
	}
	functionName, err := readNewlineString(br)
	if err != nil {
		return FunctionInfo{}, err
	}

	return FunctionInfo{
		Filename:               filename,
		FunctionName:           functionName,
		Line:                   line,
		SummedSelfCost:         r.format.Format(uint64(selfCost)),
		SummedSelfCostRaw:      uint64(selfCost),
		SummedInclusiveCost:    r.format.Format(uint64(inclCost)),
		SummedInclusiveCostRaw: uint64(inclCost),
		InvocationCount:        invocations,
		CalledFromInfoCount:    m,
		SubCallInfoCount:       k,
	}, nil
}

// CalledFromInfo returns the j-th calledFrom edge of function i.
func (r *Reader) CalledFromInfo(i, j uint32) (EdgeInfo, error) {
	offset, _, _, _, _, m, _, err := r.recordHeader(i)
	if err != nil {
		return EdgeInfo{}, err
	}
	if j >= m {
		return EdgeInfo{}, apperrors.Wrap(apperrors.CodeOutOfRange,
			fmt.Sprintf("calledFrom index %d out of range (count=%d)", j, m), nil)
	}
	return r.readEdge(offset + int64(4*(6+4*j)))
}

// SubCallInfo returns the j-th subCalls edge of function i.
func (r *Reader) SubCallInfo(i, j uint32) (EdgeInfo, error) {
	offset, _, _, _, _, m, k, err := r.recordHeader(i)
	if err != nil {
		return EdgeInfo{}, err
	}
	if j >= k {
		return EdgeInfo{}, apperrors.Wrap(apperrors.CodeOutOfRange,
			fmt.Sprintf("subCall index %d out of range (count=%d)", j, k), nil)
	}
	return r.readEdge(offset + int64(4*(6+4*m+4*j)))
}

func (r *Reader) readEdge(at int64) (EdgeInfo, error) {
	if _, err := r.f.Seek(at, io.SeekStart); err != nil {
		return EdgeInfo{}, apperrors.Wrap(apperrors.CodeIoRead, "seeking to edge", err)
	}
	var words [4]uint32
	if err := binary.Read(r.f, binary.LittleEndian, &words); err != nil {
		return EdgeInfo{}, apperrors.Wrap(apperrors.CodeIoRead, "reading edge", err)
	}
	return EdgeInfo{
		FunctionNr:        words[0],
		Line:              words[1],
		CallCount:         words[2],
		SummedCallCost:    r.format.Format(uint64(words[3])),
		SummedCallCostRaw: uint64(words[3]),
	}, nil
}

// GetHeader returns the value recorded for name. On the first call this
// seeks to headersPos and reads the whole trailing headers block, applying
// the index's aggregation rules: "summary" is special-cased (runs counts
// occurrences, summary sums the first whitespace-delimited field of each
// occurrence), every other key simply overwrites on each occurrence.
// Subsequent calls serve from the cached result.
func (r *Reader) GetHeader(name string) (string, error) {
	if r.headers == nil {
		if err := r.loadHeaders(); err != nil {
			return "", err
		}
	}
	switch name {
	case "runs":
		return strconv.FormatUint(r.headers.runs, 10), nil
	case "summary":
		return strconv.FormatUint(r.headers.summary, 10), nil
	default:
		return r.headers.values[name], nil
	}
}

func (r *Reader) loadHeaders() error {
	if _, err := r.f.Seek(int64(r.headersPos), io.SeekStart); err != nil {
		return apperrors.Wrap(apperrors.CodeIoRead, "seeking to headers block", err)
	}

	cache := &headerCache{
		values: map[string]string{"cmd": "", "creator": ""},
	}

	scanner := bufio.NewScanner(r.f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		if key == "summary" {
			cache.runs++
			fields := strings.Fields(value)
			if len(fields) > 0 {
				if t, err := strconv.ParseUint(fields[0], 10, 64); err == nil {
					cache.summary += t
				}
			}
			continue
		}
		cache.values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return apperrors.Wrap(apperrors.CodeIoRead, "reading headers block", err)
	}

	r.headers = cache
	return nil
}

// readNewlineString reads up to and including a line feed, returning the
// content without the terminator.
func readNewlineString(br *bufio.Reader) (string, error) {
	s, err := br.ReadString('\n')
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeIoRead, "reading string field", err)
	}
	return strings.TrimSuffix(s, "\n"), nil
}
