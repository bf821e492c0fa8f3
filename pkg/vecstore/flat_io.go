package vecstore

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

var flatMagic = [4]byte{'F', 'L', 'A', 'T'}

const flatVersion uint32 = 1

// loadChunk bounds how many floats LoadFlat reads per step, so a corrupt
// count field fails on EOF instead of allocating the claimed size up front.
const loadChunk = 64 * 1024

// Save writes the index to w.
//
// Format:
//
//	[4B magic "FLAT"] [4B version]
//	[4B dim] [8B generation] [8B count]
//	[count × dim × 4B float32 vectors]
//
// All integers and floats are little-endian.
func (f *Flat) Save(w io.Writer) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	bw := bufio.NewWriter(w)
	le := binary.LittleEndian
	write := func(v any) error { return binary.Write(bw, le, v) }

	if _, err := bw.Write(flatMagic[:]); err != nil {
		return fmt.Errorf("vecstore: save magic: %w", err)
	}
	if err := write(flatVersion); err != nil {
		return fmt.Errorf("vecstore: save version: %w", err)
	}
	if err := write(uint32(f.dim)); err != nil {
		return fmt.Errorf("vecstore: save dim: %w", err)
	}
	if err := write(f.gen); err != nil {
		return fmt.Errorf("vecstore: save generation: %w", err)
	}
	if err := write(uint64(f.n)); err != nil {
		return fmt.Errorf("vecstore: save count: %w", err)
	}
	if len(f.data) > 0 {
		if err := write(f.data); err != nil {
			return fmt.Errorf("vecstore: save vectors: %w", err)
		}
	}
	return bw.Flush()
}

// LoadFlat reads an index written by [Flat.Save]. It consumes exactly the
// bytes Save produced, so the reader may carry further data after the index.
// A short read is reported as an error wrapping [io.ErrUnexpectedEOF].
func LoadFlat(r io.Reader) (*Flat, error) {
	le := binary.LittleEndian
	read := func(v any) error {
		err := binary.Read(r, le, v)
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
		return err
	}

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("vecstore: load magic: %w", err)
	}
	if magic != flatMagic {
		return nil, fmt.Errorf("%w: magic %q", ErrInvalidFormat, magic[:])
	}

	var version uint32
	if err := read(&version); err != nil {
		return nil, fmt.Errorf("vecstore: load version: %w", err)
	}
	if version != flatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d (want %d)", ErrInvalidFormat, version, flatVersion)
	}

	var dim uint32
	if err := read(&dim); err != nil {
		return nil, fmt.Errorf("vecstore: load dim: %w", err)
	}
	if dim == 0 {
		return nil, fmt.Errorf("%w: dimension 0", ErrInvalidFormat)
	}

	var gen, count uint64
	if err := read(&gen); err != nil {
		return nil, fmt.Errorf("vecstore: load generation: %w", err)
	}
	if err := read(&count); err != nil {
		return nil, fmt.Errorf("vecstore: load count: %w", err)
	}
	if count > uint64(math.MaxInt32)/uint64(dim) {
		return nil, fmt.Errorf("%w: %d vectors of dimension %d", ErrInvalidFormat, count, dim)
	}

	total := int(count) * int(dim)
	data := make([]float32, 0, min(total, loadChunk))
	buf := make([]float32, loadChunk)
	for len(data) < total {
		step := buf[:min(loadChunk, total-len(data))]
		if err := read(step); err != nil {
			return nil, fmt.Errorf("vecstore: load vectors: %w", err)
		}
		data = append(data, step...)
	}

	return &Flat{
		dim:  int(dim),
		data: data,
		n:    int(count),
		gen:  gen,
	}, nil
}
