package lazystore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/edwinsyarief/lazystore/codec"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how a snapshot body is compressed.
type Compression uint8

const (
	// CompressionNone stores the body as is.
	CompressionNone Compression = iota
	// CompressionZstd compresses the body with zstd.
	CompressionZstd
	// CompressionLZ4 compresses the body as one LZ4 block.
	CompressionLZ4
)

// String returns the configuration name of the compression.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

// ParseCompression resolves a configuration name to a compression.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("%w: unknown compression %q", ErrInvalidConfig, s)
	}
}

// Snapshot format, little endian:
//
//	header:  magic "LZSN" | version u16 | compression u8 | codec name (u8 len + bytes)
//	         | snapshot uuid [16] | raw body size u64 | stored body size u64
//	body:    slot count u32, then per slot: generation u32 | occupied u8
//	         | if occupied: payload size u32 + codec payload
//	trailer: xxhash64 of the stored body bytes
//
// Every slot is written, occupied or not, so that generations survive a
// round trip and ids that were stale before a save stay stale after a load.
// Indices are never written.
const (
	snapshotMagic   = "LZSN"
	snapshotVersion = 1

	// maxSnapshotBody bounds allocations made for a declared body size.
	maxSnapshotBody = 1 << 34
)

// SnapshotInfo describes a saved or loaded snapshot.
type SnapshotInfo struct {
	Codec       string
	ID          uuid.UUID
	Checksum    uint64
	RawSize     int64
	StoredSize  int64
	Records     int
	Slots       int
	Version     uint16
	Compression Compression
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxSnapshotBody))
}

// compressBody returns the stored form of raw and the compression actually
// applied. Incompressible LZ4 input falls back to CompressionNone.
func compressBody(raw []byte, c Compression) ([]byte, Compression, error) {
	switch c {
	case CompressionNone:
		return raw, CompressionNone, nil
	case CompressionZstd:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, 0, err
		}
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(raw, nil), CompressionZstd, nil
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, dst, nil)
		if err != nil {
			return nil, 0, err
		}
		if n == 0 {
			return raw, CompressionNone, nil
		}
		return dst[:n], CompressionLZ4, nil
	default:
		return nil, 0, fmt.Errorf("%w: unknown compression %d", ErrInvalidConfig, c)
	}
}

// maxLZ4Ratio is the largest expansion an LZ4 block can encode: one token
// byte and one length byte yield at most 255 output bytes.
const maxLZ4Ratio = 255

// maxInitialRaw caps the buffer preallocated for a zstd body. Larger bodies
// grow as they are decoded.
const maxInitialRaw = 1 << 24

// checkRawSize rejects a declared raw body size the stored body could not
// produce.
func checkRawSize(c Compression, rawSize, storedSize uint64) error {
	switch c {
	case CompressionNone:
		if rawSize != storedSize {
			return fmt.Errorf("%w: body size %d, header says %d", ErrCorruptSnapshot, storedSize, rawSize)
		}
	case CompressionLZ4:
		if rawSize > storedSize*maxLZ4Ratio {
			return fmt.Errorf("%w: raw size %d out of range for %d stored bytes", ErrCorruptSnapshot, rawSize, storedSize)
		}
	}
	return nil
}

func decompressBody(stored []byte, c Compression, rawSize uint64) ([]byte, error) {
	switch c {
	case CompressionNone:
		if uint64(len(stored)) != rawSize {
			return nil, fmt.Errorf("%w: body size %d, header says %d", ErrCorruptSnapshot, len(stored), rawSize)
		}
		return stored, nil
	case CompressionZstd:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, err
		}
		defer zstdDecoderPool.Put(dec)
		raw, err := dec.DecodeAll(stored, make([]byte, 0, min(rawSize, maxInitialRaw)))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
		}
		if uint64(len(raw)) != rawSize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorruptSnapshot)
		}
		return raw, nil
	case CompressionLZ4:
		raw := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(stored, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
		}
		if uint64(n) != rawSize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorruptSnapshot)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("%w: unknown compression %d", ErrCorruptSnapshot, c)
	}
}

// SaveSnapshot writes every slot of the store to w using the store's codec
// and compression.
func (s *Store[E]) SaveSnapshot(w io.Writer) (SnapshotInfo, error) {
	s.borrow.checkRead("SaveSnapshot")
	info, err := s.saveSnapshot(w)
	s.logger.LogSnapshot("save", info.ID, info.Records, err)
	return info, err
}

func (s *Store[E]) saveSnapshot(w io.Writer) (SnapshotInfo, error) {
	info := SnapshotInfo{
		Codec:   s.codec.Name(),
		ID:      uuid.New(),
		Version: snapshotVersion,
		Slots:   int(s.pool.length),
	}

	raw := binary.LittleEndian.AppendUint32(nil, s.pool.length)
	for pos := range s.pool.length {
		sl := s.pool.at(pos)
		raw = binary.LittleEndian.AppendUint32(raw, sl.generation)
		if !sl.occupied {
			raw = append(raw, 0)
			continue
		}
		// Occupied flag, then a size prefix patched once the payload is in.
		raw = append(raw, 1, 0, 0, 0, 0)
		sizeAt := len(raw) - 4
		var err error
		if raw, err = s.codec.Append(raw, &sl.value); err != nil {
			return info, fmt.Errorf("encode slot %d: %w", pos, err)
		}
		binary.LittleEndian.PutUint32(raw[sizeAt:], uint32(len(raw)-sizeAt-4))
		info.Records++
	}

	stored, applied, err := compressBody(raw, s.compression)
	if err != nil {
		return info, err
	}
	info.Compression = applied
	info.RawSize = int64(len(raw))
	info.StoredSize = int64(len(stored))
	info.Checksum = xxhash.Sum64(stored)

	name := info.Codec
	if len(name) > 255 {
		return info, fmt.Errorf("%w: codec name too long", ErrUnknownCodec)
	}
	hdr := make([]byte, 0, 4+2+1+1+len(name)+16+8+8)
	hdr = append(hdr, snapshotMagic...)
	hdr = binary.LittleEndian.AppendUint16(hdr, snapshotVersion)
	hdr = append(hdr, byte(applied), byte(len(name)))
	hdr = append(hdr, name...)
	hdr = append(hdr, info.ID[:]...)
	hdr = binary.LittleEndian.AppendUint64(hdr, uint64(len(raw)))
	hdr = binary.LittleEndian.AppendUint64(hdr, uint64(len(stored)))

	if _, err := w.Write(hdr); err != nil {
		return info, err
	}
	if _, err := w.Write(stored); err != nil {
		return info, err
	}
	trailer := binary.LittleEndian.AppendUint64(nil, info.Checksum)
	if _, err := w.Write(trailer); err != nil {
		return info, err
	}
	return info, nil
}

// LoadSnapshot replaces the contents of the store with the snapshot read
// from r. Ids from the snapshot's source store remain valid, and every index
// registered on this store is rebuilt from the loaded records. Ids issued by
// this store before the load mean nothing afterwards. The store is left
// untouched if the snapshot cannot be read.
//
// Records are decoded with the codec named in the snapshot header.
func (s *Store[E]) LoadSnapshot(r io.Reader) (SnapshotInfo, error) {
	s.borrow.checkMutate("LoadSnapshot")
	info, gens, values, err := s.readSnapshot(r)
	if err == nil {
		s.pool.restore(gens, values)
		for _, id := range s.index.indexed.IDs() {
			s.buildIndex(id, s.index.get(id).encoding())
		}
	}
	s.logger.LogSnapshot("load", info.ID, info.Records, err)
	return info, err
}

func (s *Store[E]) readSnapshot(r io.Reader) (info SnapshotInfo, gens []uint32, values []*E, err error) {
	var fixed [8]byte
	if _, err = io.ReadFull(r, fixed[:]); err != nil {
		return info, nil, nil, fmt.Errorf("%w: header: %w", ErrCorruptSnapshot, err)
	}
	if string(fixed[:4]) != snapshotMagic {
		return info, nil, nil, fmt.Errorf("%w: bad magic %q", ErrCorruptSnapshot, fixed[:4])
	}
	info.Version = binary.LittleEndian.Uint16(fixed[4:6])
	if info.Version != snapshotVersion {
		return info, nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, info.Version)
	}
	info.Compression = Compression(fixed[6])
	name := make([]byte, fixed[7])
	if _, err = io.ReadFull(r, name); err != nil {
		return info, nil, nil, fmt.Errorf("%w: codec name: %w", ErrCorruptSnapshot, err)
	}
	info.Codec = string(name)
	cd, ok := codec.Lookup(info.Codec)
	if !ok {
		if info.Codec != s.codec.Name() {
			return info, nil, nil, fmt.Errorf("%w: %q", ErrUnknownCodec, info.Codec)
		}
		cd = s.codec
	}

	var rest [16 + 8 + 8]byte
	if _, err = io.ReadFull(r, rest[:]); err != nil {
		return info, nil, nil, fmt.Errorf("%w: header: %w", ErrCorruptSnapshot, err)
	}
	copy(info.ID[:], rest[:16])
	rawSize := binary.LittleEndian.Uint64(rest[16:24])
	storedSize := binary.LittleEndian.Uint64(rest[24:32])
	if rawSize > maxSnapshotBody || storedSize > maxSnapshotBody {
		return info, nil, nil, fmt.Errorf("%w: body size out of range", ErrCorruptSnapshot)
	}
	info.RawSize = int64(rawSize)
	info.StoredSize = int64(storedSize)

	if err = checkRawSize(info.Compression, rawSize, storedSize); err != nil {
		return info, nil, nil, err
	}

	// The body is copied through a limited reader into a growing buffer, so
	// a header that overstates the body cannot force a large allocation.
	var body bytes.Buffer
	if _, err = io.CopyN(&body, r, int64(storedSize)+8); err != nil {
		return info, nil, nil, fmt.Errorf("%w: body: %w", ErrCorruptSnapshot, err)
	}
	stored := body.Bytes()
	info.Checksum = binary.LittleEndian.Uint64(stored[storedSize:])
	stored = stored[:storedSize]
	if sum := xxhash.Sum64(stored); sum != info.Checksum {
		return info, nil, nil, fmt.Errorf("%w: got %016x, want %016x", ErrChecksumMismatch, sum, info.Checksum)
	}

	raw, err := decompressBody(stored, info.Compression, rawSize)
	if err != nil {
		return info, nil, nil, err
	}
	gens, values, err = decodeBody[E](raw, cd)
	if err != nil {
		return info, nil, nil, err
	}
	info.Slots = len(gens)
	for _, v := range values {
		if v != nil {
			info.Records++
		}
	}
	return info, gens, values, nil
}

func decodeBody[E any](raw []byte, cd codec.Codec) ([]uint32, []*E, error) {
	if len(raw) < 4 {
		return nil, nil, fmt.Errorf("%w: truncated body", ErrCorruptSnapshot)
	}
	n := binary.LittleEndian.Uint32(raw)
	raw = raw[4:]
	// Every slot takes at least 5 bytes.
	if uint64(n)*5 > uint64(len(raw)) {
		return nil, nil, fmt.Errorf("%w: slot count %d exceeds body", ErrCorruptSnapshot, n)
	}
	gens := make([]uint32, n)
	values := make([]*E, n)
	for pos := range n {
		if len(raw) < 5 {
			return nil, nil, fmt.Errorf("%w: truncated slot %d", ErrCorruptSnapshot, pos)
		}
		gens[pos] = binary.LittleEndian.Uint32(raw)
		occupied := raw[4]
		raw = raw[5:]
		if gens[pos] == 0 {
			return nil, nil, fmt.Errorf("%w: slot %d has generation 0", ErrCorruptSnapshot, pos)
		}
		if occupied == 0 {
			continue
		}
		if len(raw) < 4 {
			return nil, nil, fmt.Errorf("%w: truncated slot %d", ErrCorruptSnapshot, pos)
		}
		size := binary.LittleEndian.Uint32(raw)
		raw = raw[4:]
		if uint64(size) > uint64(len(raw)) {
			return nil, nil, fmt.Errorf("%w: truncated payload of slot %d", ErrCorruptSnapshot, pos)
		}
		v := new(E)
		if err := cd.Decode(raw[:size], v); err != nil {
			return nil, nil, fmt.Errorf("%w: decode slot %d: %w", ErrCorruptSnapshot, pos, err)
		}
		values[pos] = v
		raw = raw[size:]
	}
	if len(raw) != 0 {
		return nil, nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptSnapshot, len(raw))
	}
	return gens, values, nil
}
