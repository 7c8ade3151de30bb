package index

import (
	"bufio"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	VectorsFile   = "index.bin"
	DocumentsFile = "documents.gob"

	headerSize = 8 + 4 + 8
)

var magic = [8]byte{'P', 'D', 'F', 'L', 'A', 'T', '0', '1'}

// Entry is the chunk payload stored alongside each vector.
type Entry struct {
	Text string
	Meta Metadata
}

type Metadata struct {
	ID        string
	Title     string
	SourceURL string
	Category  string
}

type header struct {
	Magic [8]byte
	Dim   uint32
	Count uint64
}

// Save writes both artifacts into a fresh directory next to dir and then
// swaps it into place, so readers see either the previous index or the new
// one and never a mix of the two.
func (f *Flat) Save(dir string) error {
	if len(f.meta) != f.Len() {
		return fmt.Errorf("index: %d vectors but %d metadata entries", f.Len(), len(f.meta))
	}

	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return err
	}
	tmp, err := os.MkdirTemp(parent, filepath.Base(dir)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	if err := writeFile(filepath.Join(tmp, VectorsFile), f.writeVectors); err != nil {
		return fmt.Errorf("index: writing vectors: %w", err)
	}
	if err := writeFile(filepath.Join(tmp, DocumentsFile), f.writeDocuments); err != nil {
		return fmt.Errorf("index: writing documents: %w", err)
	}

	return publish(tmp, dir)
}

func publish(tmp, dir string) error {
	backup := dir + ".old"
	if err := os.RemoveAll(backup); err != nil {
		return err
	}
	hadPrevious := true
	if err := os.Rename(dir, backup); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("index: moving previous artifacts aside: %w", err)
		}
		hadPrevious = false
	}
	if err := os.Rename(tmp, dir); err != nil {
		if hadPrevious {
			_ = os.Rename(backup, dir)
		}
		return fmt.Errorf("index: publishing artifacts: %w", err)
	}
	if hadPrevious {
		return os.RemoveAll(backup)
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(file)
	if err := write(w); err != nil {
		file.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func (f *Flat) writeVectors(w io.Writer) error {
	h := header{Magic: magic, Dim: uint32(f.dim), Count: uint64(f.Len())}
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, f.data)
}

func (f *Flat) writeDocuments(w io.Writer) error {
	return gob.NewEncoder(w).Encode(f.meta)
}

// Load reads the artifacts from dir. A dim of zero accepts whatever
// dimension the artifacts were built with.
func Load(dir string, dim int) (*Flat, error) {
	vectorsPath := filepath.Join(dir, VectorsFile)
	documentsPath := filepath.Join(dir, DocumentsFile)

	for _, p := range []string{vectorsPath, documentsPath} {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrMissingIndex, p)
			}
			return nil, err
		}
	}

	f, err := readVectors(vectorsPath, dim)
	if err != nil {
		return nil, err
	}

	docs, err := os.Open(documentsPath)
	if err != nil {
		return nil, err
	}
	defer docs.Close()

	var entries []Entry
	if err := gob.NewDecoder(bufio.NewReader(docs)).Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptIndex, documentsPath, err)
	}
	if len(entries) != f.Len() {
		return nil, fmt.Errorf("%w: %d documents for %d vectors", ErrCorruptIndex, len(entries), f.Len())
	}
	f.meta = entries
	return f, nil
}

func readVectors(path string, dim int) (*Flat, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	r := bufio.NewReader(file)
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: %s: reading header: %v", ErrCorruptIndex, path, err)
	}
	if h.Magic != magic || h.Dim == 0 {
		return nil, fmt.Errorf("%w: %s: bad header", ErrCorruptIndex, path)
	}
	if dim > 0 && int(h.Dim) != dim {
		return nil, fmt.Errorf("%w: artifacts have dimension %d, configured %d", ErrDimensionMismatch, h.Dim, dim)
	}

	payload := info.Size() - headerSize
	if payload < 0 || h.Count > uint64(payload)/4/uint64(h.Dim) || uint64(payload) != h.Count*uint64(h.Dim)*4 {
		return nil, fmt.Errorf("%w: %s: size does not match %d x %d vectors", ErrCorruptIndex, path, h.Count, h.Dim)
	}

	data := make([]float32, h.Count*uint64(h.Dim))
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("%w: %s: reading vectors: %v", ErrCorruptIndex, path, err)
	}
	return &Flat{dim: int(h.Dim), data: data}, nil
}
