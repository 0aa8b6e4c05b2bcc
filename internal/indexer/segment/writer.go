package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/schema"
	"github.com/google/uuid"
)

// MagicBytes identifies a valid .spdx segment file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 128
	FooterSize    int    = 8
	Extension            = ".spdx"
)

// Section indexes into SegmentHeader.Sections.
const (
	SectionPostings = iota
	SectionDict
	SectionStored
	SectionStoredIndex
	SectionNumeric
	sectionCount
)

// Section locates one region of the segment body.
type Section struct {
	Offset int64
	Size   int64
}

// SegmentHeader is the fixed-size header written at the start of every
// segment.
type SegmentHeader struct {
	Magic     uint32
	Version   uint32
	TermCount uint32
	MaxDoc    uint32
	CreatedAt int64
	Sections  [sectionCount]Section
}

func (h SegmentHeader) encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(buf[12:16], h.MaxDoc)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.CreatedAt))
	for i, s := range h.Sections {
		at := 24 + i*16
		binary.LittleEndian.PutUint64(buf[at:at+8], uint64(s.Offset))
		binary.LittleEndian.PutUint64(buf[at+8:at+16], uint64(s.Size))
	}
	return buf
}

func decodeHeader(buf []byte) SegmentHeader {
	h := SegmentHeader{
		Magic:     binary.LittleEndian.Uint32(buf[0:4]),
		Version:   binary.LittleEndian.Uint32(buf[4:8]),
		TermCount: binary.LittleEndian.Uint32(buf[8:12]),
		MaxDoc:    binary.LittleEndian.Uint32(buf[12:16]),
		CreatedAt: int64(binary.LittleEndian.Uint64(buf[16:24])),
	}
	for i := range h.Sections {
		at := 24 + i*16
		h.Sections[i] = Section{
			Offset: int64(binary.LittleEndian.Uint64(buf[at : at+8])),
			Size:   int64(binary.LittleEndian.Uint64(buf[at+8 : at+16])),
		}
	}
	return h
}

// DictEntry maps a term to its postings offset, length, and document frequency
// in the segment file.
type DictEntry struct {
	Field      string `json:"f"`
	Token      string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

func (d DictEntry) term() index.Term { return index.Term{Field: d.Field, Token: d.Token} }

// storedField is the on-disk form of a stored value. Numbers are kept as
// IEEE bits so infinities survive JSON.
type storedField struct {
	Name string  `json:"n"`
	Text *string `json:"t,omitempty"`
	Bits *uint64 `json:"b,omitempty"`
}

type storedRef struct {
	Offset int64 `json:"o"`
	Len    int   `json:"l"`
}

// Writer serialises pending buffers into new .spdx segment files.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer that writes segments into the given directory.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Write atomically creates a new segment file. It writes to a .tmp file first,
// fsyncs, and renames on success; on failure no file is left behind. The
// returned name is relative to the writer's directory.
func (w *Writer) Write(data index.SegmentData) (string, error) {
	if data.MaxDoc == 0 {
		return "", fmt.Errorf("cannot write empty segment")
	}
	segmentName := "seg_" + uuid.NewString() + Extension
	finalPath := filepath.Join(w.dataDir, segmentName)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	header := SegmentHeader{
		Magic:     MagicBytes,
		Version:   FormatVersion,
		TermCount: uint32(len(data.Terms)),
		MaxDoc:    data.MaxDoc,
		CreatedAt: time.Now().Unix(),
	}
	if _, err := f.Write(header.encode()); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	crc := crc32.NewIEEE()
	body := &countingWriter{w: io.MultiWriter(f, crc), n: int64(HeaderSize)}

	postingsStart := body.n
	dict := make([]DictEntry, 0, len(data.Terms))
	for _, entry := range data.Terms {
		relativeOffset := body.n - postingsStart
		postingsData, err := json.Marshal(entry.Postings)
		if err != nil {
			return "", fmt.Errorf("marshaling postings for term %q: %w", entry.Term, err)
		}
		if _, err := body.Write(postingsData); err != nil {
			return "", fmt.Errorf("writing postings for term %q: %w", entry.Term, err)
		}
		dict = append(dict, DictEntry{
			Field:      entry.Term.Field,
			Token:      entry.Term.Token,
			PostOffset: relativeOffset,
			PostLen:    len(postingsData),
			DocFreq:    len(entry.Postings),
		})
	}
	header.Sections[SectionPostings] = Section{Offset: postingsStart, Size: body.n - postingsStart}

	if header.Sections[SectionDict], err = body.writeJSON(dict); err != nil {
		return "", fmt.Errorf("writing dictionary: %w", err)
	}

	storedStart := body.n
	refs := make([]storedRef, 0, len(data.Stored))
	for i, fields := range data.Stored {
		docData, err := json.Marshal(encodeStored(fields))
		if err != nil {
			return "", fmt.Errorf("marshaling stored fields of doc %d: %w", i, err)
		}
		refs = append(refs, storedRef{Offset: body.n - storedStart, Len: len(docData)})
		if _, err := body.Write(docData); err != nil {
			return "", fmt.Errorf("writing stored fields of doc %d: %w", i, err)
		}
	}
	header.Sections[SectionStored] = Section{Offset: storedStart, Size: body.n - storedStart}

	if header.Sections[SectionStoredIndex], err = body.writeJSON(refs); err != nil {
		return "", fmt.Errorf("writing stored index: %w", err)
	}
	if header.Sections[SectionNumeric], err = body.writeJSON(data.Numeric); err != nil {
		return "", fmt.Errorf("writing numeric columns: %w", err)
	}

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc.Sum32())
	binary.LittleEndian.PutUint32(footer[4:8], data.MaxDoc)
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}
	if _, err := f.WriteAt(header.encode(), 0); err != nil {
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing segment file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		committed = true
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	committed = true
	return segmentName, nil
}

func encodeStored(fields []schema.Field) []storedField {
	out := make([]storedField, 0, len(fields))
	for _, f := range fields {
		sf := storedField{Name: f.Name}
		if f.Value.IsNumeric() {
			bits := math.Float64bits(f.Value.Number())
			sf.Bits = &bits
		} else {
			text := f.Value.Text()
			sf.Text = &text
		}
		out = append(out, sf)
	}
	return out
}

func decodeStored(in []storedField) []schema.Field {
	out := make([]schema.Field, 0, len(in))
	for _, sf := range in {
		switch {
		case sf.Bits != nil:
			out = append(out, schema.Field{Name: sf.Name, Value: schema.Number(math.Float64frombits(*sf.Bits))})
		case sf.Text != nil:
			out = append(out, schema.Field{Name: sf.Name, Value: schema.Text(*sf.Text)})
		default:
			out = append(out, schema.Field{Name: sf.Name, Value: schema.Text("")})
		}
	}
	return out
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func (c *countingWriter) writeJSON(v any) (Section, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Section{}, err
	}
	start := c.n
	if _, err := c.Write(data); err != nil {
		return Section{}, err
	}
	return Section{Offset: start, Size: int64(len(data))}, nil
}
