package storage

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v4"
)

// ErrCorrupt is returned when a blob's header or body cannot be decoded
var ErrCorrupt = errors.New("corrupt index file")

// blobHeader prefixes every index blob before compression
type blobHeader struct {
	Magic   [4]byte
	Version uint16
}

// WriteBlob lz4-compresses a header followed by whatever encode writes and
// renames the result over path
func WriteBlob(path string, magic [4]byte, version uint16, encode func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	zw := lz4.NewWriter(tmp)
	bw := bufio.NewWriter(zw)

	err = binary.Write(bw, binary.LittleEndian, blobHeader{Magic: magic, Version: version})
	if err == nil {
		err = encode(bw)
	}
	if err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = zw.Close()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ReadBlob decompresses path, checks its header and hands the body to
// decode. A missing file is ErrNotFound; a bad header is ErrCorrupt.
func ReadBlob(path string, magic [4]byte, version uint16, decode func(r io.Reader) error) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReader(lz4.NewReader(f))

	var hdr blobHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, filepath.Base(path), err)
	}
	if hdr.Magic != magic {
		return fmt.Errorf("%w: %s: bad magic %q", ErrCorrupt, filepath.Base(path), hdr.Magic[:])
	}
	if hdr.Version != version {
		return fmt.Errorf("%w: %s: unsupported version %d", ErrCorrupt, filepath.Base(path), hdr.Version)
	}

	if err := decode(r); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, filepath.Base(path), err)
	}
	return nil
}

// WriteMatrix writes count and dim followed by every row as little-endian float32
func WriteMatrix(w io.Writer, rows [][]float32, dim int) error {
	if err := binary.Write(w, binary.LittleEndian, [2]uint32{uint32(len(rows)), uint32(dim)}); err != nil {
		return err
	}
	for i, row := range rows {
		if len(row) != dim {
			return fmt.Errorf("row %d has dimension %d, want %d", i, len(row), dim)
		}
		if _, err := w.Write(SerializeVector(row)); err != nil {
			return err
		}
	}
	return nil
}

// maxMatrixBytes bounds what ReadMatrix will allocate from a header
const maxMatrixBytes = 8 << 30

// ReadMatrix reads a matrix written by WriteMatrix
func ReadMatrix(r io.Reader) ([][]float32, int, error) {
	var shape [2]uint32
	if err := binary.Read(r, binary.LittleEndian, &shape); err != nil {
		return nil, 0, err
	}
	count, dim := int(shape[0]), int(shape[1])
	if uint64(count)*uint64(dim)*4 > maxMatrixBytes {
		return nil, 0, fmt.Errorf("matrix %dx%d too large", count, dim)
	}

	rows := make([][]float32, count)
	buf := make([]byte, dim*4)
	for i := range rows {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, 0, fmt.Errorf("row %d: %w", i, err)
		}
		rows[i] = DeserializeVector(buf)
	}

	// Trailing bytes mean the header lied about the shape.
	var extra [1]byte
	if n, _ := r.Read(extra[:]); n != 0 {
		return nil, 0, errors.New("trailing data after matrix")
	}
	return rows, dim, nil
}

// SerializeVector converts a float32 slice to a little-endian byte blob
func SerializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// DeserializeVector converts a little-endian byte blob back to a float32 slice
func DeserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}
