package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"path"

	"github.com/haivivi/retrieva/go/pkg/vecstore"
	"github.com/vmihailenco/msgpack/v5"
)

// Record is one ledger entry: the text stored at a position and the document
// it came from.
type Record struct {
	Text   string `json:"text" msgpack:"text"`
	Source string `json:"source" msgpack:"source"`
}

var snapshotMagic = [4]byte{'R', 'S', 'N', 'P'}

const (
	snapshotVersion uint32 = 1
	snapshotName           = "snapshot.bin"
	crcSize                = 4
)

// snapshotPath returns the storage path of a session's snapshot.
func snapshotPath(id string) string {
	return path.Join(id, snapshotName)
}

// encodeSnapshot serializes the index and the ledger into one buffer.
//
// Layout:
//
//	[4B magic "RSNP"] [4B version]
//	[index section, see vecstore.Flat.Save]
//	[8B ledger length] [msgpack []Record]
//	[4B CRC-32 (IEEE) of everything above]
func encodeSnapshot(idx *vecstore.Flat, ledger []Record) ([]byte, error) {
	if idx.Size() != len(ledger) {
		return nil, fmt.Errorf("%w: index has %d vectors, ledger %d records",
			ErrCorruptedState, idx.Size(), len(ledger))
	}
	if ledger == nil {
		ledger = []Record{}
	}
	records, err := msgpack.Marshal(ledger)
	if err != nil {
		return nil, fmt.Errorf("session: encode ledger: %w", err)
	}

	var buf bytes.Buffer
	le := binary.LittleEndian
	buf.Write(snapshotMagic[:])
	binary.Write(&buf, le, snapshotVersion)
	if err := idx.Save(&buf); err != nil {
		return nil, err
	}
	binary.Write(&buf, le, uint64(len(records)))
	buf.Write(records)
	binary.Write(&buf, le, crc32.ChecksumIEEE(buf.Bytes()))
	return buf.Bytes(), nil
}

// decodeSnapshot parses data written by encodeSnapshot.
//
// Data that ends before the declared sections do is reported as an error
// wrapping [io.ErrUnexpectedEOF]; every other failure wraps
// [ErrCorruptedState].
func decodeSnapshot(data []byte) (*vecstore.Flat, []Record, error) {
	if len(data) < 8 {
		return nil, nil, fmt.Errorf("session: snapshot header: %w", io.ErrUnexpectedEOF)
	}
	if !bytes.Equal(data[:4], snapshotMagic[:]) {
		return nil, nil, fmt.Errorf("%w: bad snapshot magic %q", ErrCorruptedState, data[:4])
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != snapshotVersion {
		return nil, nil, fmt.Errorf("%w: unsupported snapshot version %d", ErrCorruptedState, v)
	}

	r := bytes.NewReader(data[8:])
	idx, err := vecstore.LoadFlat(r)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %w", ErrCorruptedState, err)
	}

	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, nil, fmt.Errorf("session: snapshot ledger length: %w", io.ErrUnexpectedEOF)
	}
	switch rest := uint64(r.Len()); {
	case n > rest || rest-n < crcSize:
		return nil, nil, fmt.Errorf("session: snapshot ledger: %w", io.ErrUnexpectedEOF)
	case rest-n > crcSize:
		return nil, nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptedState, rest-n-crcSize)
	}

	body := data[:len(data)-crcSize]
	want := binary.LittleEndian.Uint32(data[len(data)-crcSize:])
	if got := crc32.ChecksumIEEE(body); got != want {
		return nil, nil, fmt.Errorf("%w: checksum %08x, want %08x", ErrCorruptedState, got, want)
	}

	var ledger []Record
	if err := msgpack.Unmarshal(body[len(body)-int(n):], &ledger); err != nil {
		return nil, nil, fmt.Errorf("%w: decode ledger: %w", ErrCorruptedState, err)
	}
	if len(ledger) != idx.Size() {
		return nil, nil, fmt.Errorf("%w: index has %d vectors, ledger %d records",
			ErrCorruptedState, idx.Size(), len(ledger))
	}
	return idx, ledger, nil
}
