package vector

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

// Save persists the index to path. Directory is created if needed.
// Format: dimensions (4), n (4), then n vectors of dimensions*4 bytes,
// little endian, in insertion order.
func (x *FlatIndex) Save(path string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()
	if err := binary.Write(f, binary.LittleEndian, uint32(x.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(x.vectors))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, vec := range x.vectors {
		if _, err := f.Write(float32SliceToBytes(vec)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load reads the index from path and replaces the in-memory contents,
// preserving stored order. Dimensions must match. If the file does not
// exist, no error is returned and the index is unchanged.
func (x *FlatIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	var dim, n uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != x.dimensions {
		return fmt.Errorf("%w: file has %d, index expects %d", ErrDimensionMismatch, dim, x.dimensions)
	}
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.vectors = make([][]float32, 0, n)
	buf := make([]byte, x.dimensions*4)
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(f, buf); err != nil {
			return fmt.Errorf("read vector %d: %w", i, err)
		}
		x.vectors = append(x.vectors, bytesToFloat32Slice(buf))
	}
	return nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
