// Package wia provides read-only support for the WIA disc image
// container format used to store compressed GameCube and Wii disc images.
// RVZ files are not accepted.
package wia

import (
	"fmt"
	"io"
)

// Decoder provides random access to a WIA file's logical (decompressed,
// and for Wii partitions re-encrypted) disc image.
//
// A Decoder is not safe for concurrent use: spec §5 rules out a
// cross-call cache, so every Read walks the tables and decompresses
// groups fresh, and a single in-flight Read assumes exclusive access to
// the underlying file handle.
type Decoder struct {
	file    io.ReaderAt
	header1 *header1
	header2 *header2
	tables  *tables

	poisonErr error // set once a Read or ReadWiiDecrypted fails; every such call after that fails the same way
}

// Open validates both headers and loads the partition/raw-data/group
// tables, per spec §4.1-§4.3. It performs no group decompression: that
// happens lazily, per chunk, inside Read and ReadWiiDecrypted.
func Open(r io.ReaderAt) (*Decoder, error) {
	h1, h2, err := readHeaders(r)
	if err != nil {
		return nil, err
	}

	t, err := loadTables(r, h2)
	if err != nil {
		return nil, err
	}

	return &Decoder{
		file:    r,
		header1: h1,
		header2: h2,
		tables:  t,
	}, nil
}

// checkPoisoned returns the sticky error from an earlier failed Read, if
// any. Once Read or ReadWiiDecrypted has returned an error of any kind,
// the Decoder refuses further reads rather than risk returning data straddling a
// partially consumed, now-desynchronized group.
func (d *Decoder) checkPoisoned() error {
	if d.poisonErr != nil {
		return d.poisonErr
	}
	return nil
}

// poison records err as the Decoder's sticky failure and returns it,
// wrapping anything that isn't already one of ours so callers can always
// type-assert to *DecodeError.
func (d *Decoder) poison(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*DecodeError); !ok {
		err = errCorrupt("read", err)
	}
	d.poisonErr = err
	return err
}

// DataSize returns the logical size of the reconstructed disc image, the
// iso_file_size field of Header1.
func (d *Decoder) DataSize() uint64 {
	return d.header1.isoFileSize
}

// DiscType reports whether this is a GameCube or Wii image.
func (d *Decoder) DiscType() DiscType {
	return d.header2.discType
}

// BlockSize returns the chunk size groups are divided into (spec §4.2).
func (d *Decoder) BlockSize() uint32 {
	return d.header2.chunkSize
}

// RawSize returns the compressed file's on-disk size, Header1's
// wia_file_size field.
func (d *Decoder) RawSize() uint64 {
	return d.header1.wiaFileSize
}

// HasFastRandomAccessInBlock always reports false: every compression
// kind this decoder supports must decompress a whole chunk from its
// start before any byte inside it is available, so seeking within a
// chunk costs the same as reading it from the beginning.
func (d *Decoder) HasFastRandomAccessInBlock() bool {
	return false
}

// NumPartitions returns the number of Wii partition table entries (0 for
// a GameCube image).
func (d *Decoder) NumPartitions() int {
	return len(d.tables.partitions)
}

// NumRawDataEntries returns the number of raw-data table entries.
func (d *Decoder) NumRawDataEntries() int {
	return len(d.tables.rawData)
}

// NumGroups returns the total number of groups across every table.
func (d *Decoder) NumGroups() int {
	return len(d.tables.groups)
}

// Compression returns the single compression kind used for every group
// in this file (spec §4.2: compression is a whole-file setting).
func (d *Decoder) Compression() Compression {
	return d.header2.compression
}

// decompressGroup reads, decompresses and returns one chunk's logical
// payload, plus any hash exceptions that preceded it (non-nil only for
// r.kind == entryPartitionHashed, per spec §4.4).
//
// A group_entry with compressed_size == 0 denotes an entirely zero-filled
// chunk (spec §4.2's hole-punching case) and is served without touching
// the file at all.
func (d *Decoder) decompressGroup(r *resolved) ([]byte, []hashException, error) {
	if r.groupIndex < 0 || r.groupIndex >= len(d.tables.groups) {
		return nil, nil, errCorrupt("decompress group", fmt.Errorf("group index %d out of range of %d groups", r.groupIndex, len(d.tables.groups)))
	}
	g := &d.tables.groups[r.groupIndex]

	if g.compressedSize == 0 {
		return make([]byte, r.chunkLen), nil, nil
	}

	raw := make([]byte, g.compressedSize)
	if _, err := d.file.ReadAt(raw, int64(g.fileOffset)); err != nil {
		return nil, nil, errIOError("decompress group", err)
	}

	br := newGroupByteReader(raw)
	var exceptions []hashException
	if r.kind == entryPartitionHashed {
		var err error
		exceptions, err = readExceptionLists(br, r.chunkLen, d.header2.compression)
		if err != nil {
			return nil, nil, err
		}
	}

	dec, err := openGroupDecoder(d.header2.compression, br.remainder(), r.chunkLen, d.header2.compressorData[:d.header2.compressorDataSize])
	if err != nil {
		return nil, nil, err
	}

	out := make([]byte, r.chunkLen)
	if _, err := io.ReadFull(dec, out); err != nil {
		return nil, nil, errCorrupt("decompress group", fmt.Errorf("read group payload: %w", err))
	}
	if !dec.DoneReading() {
		return nil, nil, errCorrupt("decompress group", fmt.Errorf("group decoder produced extra data"))
	}

	return out, exceptions, nil
}

// Read fills out with size bytes of the fully reconstructed (encrypted,
// for Wii partitions) disc image starting at offset, per spec §4's
// Invariant 1: Read(0, data_size()) must reproduce the complete disc
// image byte for byte.
func (d *Decoder) Read(offset uint64, size int, out []byte) error {
	if err := d.checkPoisoned(); err != nil {
		return err
	}
	if size == 0 {
		return nil
	}
	if offset+uint64(size) > d.header1.isoFileSize {
		return d.poison(errOutOfRange("read", fmt.Errorf("range [0x%x, 0x%x) exceeds disc size 0x%x", offset, offset+uint64(size), d.header1.isoFileSize)))
	}

	written := 0
	for written < size {
		cur := offset + uint64(written)
		r, err := resolveLogical(d.tables, d.header1.isoFileSize, d.header2.discType, d.header2.chunkSize, cur)
		if err != nil {
			return d.poison(err)
		}

		payload, exceptions, err := d.decompressGroup(r)
		if err != nil {
			return d.poison(err)
		}

		var n int
		switch r.kind {
		case entryRaw, entryPartitionUnhashed:
			n = copy(out[written:written+size-written], payload[r.byteOffset:])
		case entryPartitionHashed:
			n, err = d.copyReconstructedSectors(payload, exceptions, r, out[written:], size-written)
			if err != nil {
				return d.poison(err)
			}
		default:
			return d.poison(errCorrupt("read", fmt.Errorf("unknown entry kind %v", r.kind)))
		}
		if n == 0 {
			return d.poison(errCorrupt("read", fmt.Errorf("made no progress resolving chunk at offset 0x%x", cur)))
		}
		written += n
	}
	return nil
}

// copyReconstructedSectors re-encrypts each [hash|data] sector pair in a
// decompressed Wii-partition-hashed chunk and copies the requested window
// of it into dst, per spec §4.6.
func (d *Decoder) copyReconstructedSectors(payload []byte, exceptions []hashException, r *resolved, dst []byte, want int) (int, error) {
	partitionKey := d.tables.partitions[r.partitionIdx].partitionKey

	sectorsInChunk := len(payload) / sectorSize
	written := 0
	for s := 0; s < sectorsInChunk && written < want; s++ {
		sectorStart := s * sectorSize
		sectorEnd := sectorStart + sectorSize
		if r.byteOffset >= sectorEnd {
			continue
		}

		hash, data, err := splitSector(payload, s)
		if err != nil {
			return written, errCorrupt("reconstruct sector", err)
		}
		sector, err := ReconstructSector(hash, data, exceptionsForSector(exceptions, s), partitionKey)
		if err != nil {
			return written, errCorrupt("reconstruct sector", err)
		}

		start := max(0, r.byteOffset-sectorStart)
		avail := sectorSize - start
		toCopy := min(avail, want-written)
		copy(dst[written:written+toCopy], sector[start:start+toCopy])
		written += toCopy
	}
	return written, nil
}
