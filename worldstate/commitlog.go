package worldstate

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Commit log file layout:
//
//	file   = header record*
//	header = magic:64 version:8 pad:56 checksum:64
//	record = size:uvarint timestamp:uvarint payload checksum:64
//
//	payload = height:uvarint digest:64 txid:str count:uvarint write*
//	write   = key:str flags:uvarint data:str
//	str     = len:uvarint bytes
//
// Every checksum is the xxhash64 of all file bytes before it, so a record is
// only valid if everything before it is.

var (
	ErrCorruptLog         = errors.New("corrupted commit log")
	ErrUnsupportedVersion = errors.New("unsupported commit log version")
)

const (
	logMagic         = 0x474f4c524744454c // "LEDGRLOG" as little-endian uint64
	logVersion0      = uint8(0)
	logHeaderSize    = 3 * 8
	maxRecHeaderSize = 2 * binary.MaxVarintLen64
)

type logHeader struct {
	Magic    uint64
	Version  uint8
	_        [7]byte
	Checksum uint64
}

// Commit is one committed transaction as recorded in a commit log.
type Commit struct {
	Height uint64
	Digest uint64
	TxID   string
	Time   time.Time
	Writes []Write // sorted by key
}

type Write struct {
	Key     string
	Data    []byte
	Deleted bool
}

type commitLog struct {
	f      *os.File
	path   string
	hash   xxhash.Digest
	noSync bool
	logger *slog.Logger
	err    error
}

// openCommitLog opens or creates the log at path and returns the commits it
// holds. A partially written or corrupted tail is cut off.
func openCommitLog(path string, noSync bool, logger *slog.Logger) (*commitLog, []Commit, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, nil, err
	}
	var ok bool
	defer func() {
		if !ok {
			f.Close()
		}
	}()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, err
	}

	l := &commitLog{
		f:      f,
		path:   path,
		noSync: noSync,
		logger: logger,
	}

	var commits []Commit
	if len(data) == 0 {
		var buf [logHeaderSize]byte
		fillLogHeader(buf[:], &l.hash)
		_, err = f.Write(buf[:])
		if err != nil {
			return nil, nil, err
		}
	} else {
		var valid int
		commits, valid, err = parseLog(data, &l.hash)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		if valid < len(data) {
			logger.LogAttrs(context.Background(), slog.LevelWarn, "worldstate: trimming commit log", slog.String("file", path), slog.Int("valid", valid), slog.Int("size", len(data)))
			err = f.Truncate(int64(valid))
			if err != nil {
				return nil, nil, err
			}
		}
		_, err = f.Seek(int64(valid), io.SeekStart)
		if err != nil {
			return nil, nil, err
		}
	}

	ok = true
	return l, commits, nil
}

// ReadCommitLog returns the commits recorded in the log at path, stopping
// at the first incomplete or corrupted record.
func ReadCommitLog(path string) ([]Commit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var h xxhash.Digest
	commits, _, err := parseLog(data, &h)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return commits, nil
}

// parseLog returns the valid commits of data and the length of the valid
// prefix. h ends up hashing exactly that prefix.
func parseLog(data []byte, h *xxhash.Digest) ([]Commit, int, error) {
	h.Reset()
	if len(data) < logHeaderSize {
		return nil, 0, ErrCorruptLog
	}
	var hdr logHeader
	_, err := binary.Decode(data[:logHeaderSize], binary.LittleEndian, &hdr)
	if err != nil {
		return nil, 0, err
	}
	if hdr.Magic != logMagic || xxhash.Sum64(data[:logHeaderSize-8]) != hdr.Checksum {
		return nil, 0, ErrCorruptLog
	}
	if hdr.Version > logVersion0 {
		return nil, 0, ErrUnsupportedVersion
	}
	h.Write(data[:logHeaderSize])

	var commits []Commit
	off := logHeaderSize
	for off < len(data) {
		c, n, ok := parseRecord(data[off:], h)
		if !ok {
			break
		}
		commits = append(commits, c)
		off += n
	}
	return commits, off, nil
}

func parseRecord(data []byte, h *xxhash.Digest) (Commit, int, bool) {
	size, n1 := binary.Uvarint(data)
	if n1 <= 0 {
		return Commit{}, 0, false
	}
	ts, n2 := binary.Uvarint(data[n1:])
	if n2 <= 0 {
		return Commit{}, 0, false
	}
	start := n1 + n2
	if size > uint64(len(data)-start) || uint64(len(data)-start)-size < 8 {
		return Commit{}, 0, false
	}
	end := start + int(size)

	// hash a copy so h is untouched when the record turns out to be bad
	rh := *h
	rh.Write(data[:end])
	if rh.Sum64() != binary.LittleEndian.Uint64(data[end:]) {
		return Commit{}, 0, false
	}
	c, err := decodeCommit(data[start:end])
	if err != nil {
		return Commit{}, 0, false
	}
	c.Time = time.Unix(int64(ts), 0).UTC()

	rh.Write(data[end : end+8])
	*h = rh
	return c, end + 8, true
}

// append writes c to the log and syncs it. A failed log stops accepting
// records.
func (l *commitLog) append(c *Commit) error {
	if l.err != nil {
		return l.err
	}
	payload := appendCommit(nil, c)

	buf := make([]byte, 0, maxRecHeaderSize+len(payload)+8)
	buf = binary.AppendUvarint(buf, uint64(len(payload)))
	buf = binary.AppendUvarint(buf, uint64(c.Time.Unix()))
	buf = append(buf, payload...)
	l.hash.Write(buf)
	buf = binary.LittleEndian.AppendUint64(buf, l.hash.Sum64())
	l.hash.Write(buf[len(buf)-8:])

	_, err := l.f.Write(buf)
	if err == nil && !l.noSync {
		err = l.f.Sync()
	}
	return l.fail(err)
}

func (l *commitLog) fail(err error) error {
	if err == nil {
		return nil
	}
	l.logger.LogAttrs(context.Background(), slog.LevelError, "worldstate: commit log failed", slog.String("file", l.path), slog.Any("err", err))
	if l.err == nil {
		l.err = fmt.Errorf("commit log %s: %w", l.path, err)
	}
	return l.err
}

func (l *commitLog) close() error {
	return l.f.Close()
}

func fillLogHeader(buf []byte, h *xxhash.Digest) {
	hdr := logHeader{
		Magic:   logMagic,
		Version: logVersion0,
	}
	n, err := binary.Encode(buf, binary.LittleEndian, hdr)
	if err != nil {
		panic(err)
	}
	if n != logHeaderSize {
		panic("internal size mismatch")
	}
	binary.LittleEndian.PutUint64(buf[logHeaderSize-8:], xxhash.Sum64(buf[:logHeaderSize-8]))
	h.Reset()
	h.Write(buf)
}

func appendCommit(buf []byte, c *Commit) []byte {
	buf = binary.AppendUvarint(buf, c.Height)
	buf = binary.LittleEndian.AppendUint64(buf, c.Digest)
	buf = appendStr(buf, c.TxID)
	buf = binary.AppendUvarint(buf, uint64(len(c.Writes)))
	for _, w := range c.Writes {
		buf = appendStr(buf, w.Key)
		var flags valueFlags
		if w.Deleted {
			flags |= vfDeleted
		}
		buf = binary.AppendUvarint(buf, uint64(flags))
		buf = appendStr(buf, string(w.Data))
	}
	return buf
}

func decodeCommit(data []byte) (Commit, error) {
	r := logReader{data: data}
	var c Commit
	c.Height = r.uvarint()
	c.Digest = r.uint64()
	c.TxID = r.str()
	count := r.uvarint()
	if r.err == nil && count > uint64(len(data)) {
		r.err = ErrCorruptLog
	}
	for i := uint64(0); i < count && r.err == nil; i++ {
		var w Write
		w.Key = r.str()
		w.Deleted = valueFlags(r.uvarint())&vfDeleted != 0
		if d := r.str(); d != "" {
			w.Data = []byte(d)
		}
		c.Writes = append(c.Writes, w)
	}
	if r.err == nil && len(r.data) != 0 {
		r.err = ErrCorruptLog
	}
	return c, r.err
}

func appendStr(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

type logReader struct {
	data []byte
	err  error
}

func (r *logReader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.data)
	if n <= 0 {
		r.err = ErrCorruptLog
		return 0
	}
	r.data = r.data[n:]
	return v
}

func (r *logReader) uint64() uint64 {
	if r.err != nil {
		return 0
	}
	if len(r.data) < 8 {
		r.err = ErrCorruptLog
		return 0
	}
	v := binary.LittleEndian.Uint64(r.data)
	r.data = r.data[8:]
	return v
}

func (r *logReader) str() string {
	n := r.uvarint()
	if r.err != nil {
		return ""
	}
	if n > uint64(len(r.data)) {
		r.err = ErrCorruptLog
		return ""
	}
	s := string(r.data[:n])
	r.data = r.data[n:]
	return s
}
