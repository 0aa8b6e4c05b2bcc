package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/numeric"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/schema"
	"github.com/RoaringBitmap/roaring/v2"
)

// Reader serves a committed segment. The dictionary, stored-field offsets and
// numeric columns are loaded at open; postings and stored fields are read on
// demand. A Reader is safe for concurrent use.
type Reader struct {
	file     *os.File
	name     string
	header   SegmentHeader
	dict     []DictEntry
	stored   []storedRef
	numeric  map[string]numeric.Column
	postBase int64
}

// OpenReader opens and verifies the named segment inside dir.
func OpenReader(dir, name string) (*Reader, error) {
	path := filepath.Join(dir, name)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := load(f, name)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening segment %s: %w", name, err)
	}
	return r, nil
}

func load(f *os.File, name string) (*Reader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size < int64(HeaderSize+FooterSize) {
		return nil, fmt.Errorf("truncated segment: %d bytes", size)
	}
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header := decodeHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported segment version %d", header.Version)
	}

	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, size-int64(FooterSize)); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	crc := crc32.NewIEEE()
	bodyLen := size - int64(HeaderSize+FooterSize)
	if _, err := io.Copy(crc, io.NewSectionReader(f, int64(HeaderSize), bodyLen)); err != nil {
		return nil, fmt.Errorf("checksumming body: %w", err)
	}
	if want := binary.LittleEndian.Uint32(footer[0:4]); crc.Sum32() != want {
		return nil, fmt.Errorf("checksum mismatch: got %08x, want %08x", crc.Sum32(), want)
	}
	if maxDoc := binary.LittleEndian.Uint32(footer[4:8]); maxDoc != header.MaxDoc {
		return nil, fmt.Errorf("footer doc count %d does not match header %d", maxDoc, header.MaxDoc)
	}

	r := &Reader{
		file:     f,
		name:     name,
		header:   header,
		postBase: header.Sections[SectionPostings].Offset,
	}
	if err := readJSON(f, header.Sections[SectionDict], &r.dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	if err := readJSON(f, header.Sections[SectionStoredIndex], &r.stored); err != nil {
		return nil, fmt.Errorf("parsing stored index: %w", err)
	}
	if err := readJSON(f, header.Sections[SectionNumeric], &r.numeric); err != nil {
		return nil, fmt.Errorf("parsing numeric columns: %w", err)
	}
	if uint32(len(r.stored)) != header.MaxDoc {
		return nil, fmt.Errorf("stored index has %d docs, header says %d", len(r.stored), header.MaxDoc)
	}
	return r, nil
}

func readJSON(f *os.File, s Section, v any) error {
	buf := make([]byte, s.Size)
	if _, err := f.ReadAt(buf, s.Offset); err != nil {
		return err
	}
	return json.Unmarshal(buf, v)
}

func (r *Reader) lookup(t index.Term) (DictEntry, bool) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		return !r.dict[i].term().Less(t)
	})
	if idx >= len(r.dict) || r.dict[idx].term() != t {
		return DictEntry{}, false
	}
	return r.dict[idx], true
}

func (r *Reader) Postings(t index.Term) (index.PostingList, error) {
	entry, ok := r.lookup(t)
	if !ok {
		return nil, nil
	}
	postingsBytes := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(postingsBytes, r.postBase+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings: %w", err)
	}
	var postings index.PostingList
	if err := json.Unmarshal(postingsBytes, &postings); err != nil {
		return nil, fmt.Errorf("parsing postings: %w", err)
	}
	return postings, nil
}

func (r *Reader) DocFreq(t index.Term) int {
	entry, ok := r.lookup(t)
	if !ok {
		return 0
	}
	return entry.DocFreq
}

func (r *Reader) NumericRange(field string, b numeric.Bounds) (*roaring.Bitmap, error) {
	return r.numeric[field].Lookup(b), nil
}

// Stored returns the stored fields of a segment-local document.
func (r *Reader) Stored(local uint32) ([]schema.Field, error) {
	if local >= r.header.MaxDoc {
		return nil, fmt.Errorf("doc %d out of range [0,%d)", local, r.header.MaxDoc)
	}
	ref := r.stored[local]
	buf := make([]byte, ref.Len)
	if _, err := r.file.ReadAt(buf, r.header.Sections[SectionStored].Offset+ref.Offset); err != nil {
		return nil, fmt.Errorf("reading stored fields: %w", err)
	}
	var fields []storedField
	if err := json.Unmarshal(buf, &fields); err != nil {
		return nil, fmt.Errorf("parsing stored fields: %w", err)
	}
	return decodeStored(fields), nil
}

func (r *Reader) Name() string { return r.name }

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) MaxDoc() uint32 {
	return r.header.MaxDoc
}

func (r *Reader) Close() error {
	return r.file.Close()
}
