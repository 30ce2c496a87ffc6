package wia

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
)

// builder assembles a synthetic WIA file byte-by-byte, the same technique
// the pack's only WIA-adjacent test (rvz_test.go's makeSyntheticRVZ) uses
// to avoid vendoring a real binary fixture.
type builder struct {
	buf bytes.Buffer
}

func (b *builder) offset() int64 { return int64(b.buf.Len()) }

func (b *builder) writeBytes(p []byte) { b.buf.Write(p) }

func (b *builder) pad(to int64) {
	for b.offset() < to {
		b.buf.WriteByte(0)
	}
}

func (b *builder) u32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	b.buf.Write(tmp[:])
}

func (b *builder) u64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	b.buf.Write(tmp[:])
}

// synthParams describes the handful of header2 fields a test cares about;
// everything else defaults to zero and is filled in after the tables are
// laid out so offsets can be computed in one pass.
//
// groupPayloads holds each group's already-compressed (or, under
// CompressionNone, raw) bytes in group-table order; buildWIA appends them
// after the group table itself and back-fills each groupEntry's
// fileOffset to point at its own payload (compressedSize is taken from
// len(groupPayloads[i]), a zero-length payload yielding a zero-filled
// group per spec §4.2).
type synthParams struct {
	discType      DiscType
	compression   Compression
	chunkSize     uint32
	isoSize       uint64
	partitions    []partitionEntry
	rawData       []rawDataEntry
	groups        []groupEntry
	groupPayloads [][]byte
	discHeader    [dheadSize]byte
}

// buildWIA assembles a complete, self-consistent WIA file: both headers
// (with correct SHA-1 self-hashes) followed by the partition, raw-data and
// group tables, followed by each group's payload bytes.
func buildWIA(p synthParams) []byte {
	var b builder

	// Reserve space for header1+header2; their hash fields are patched in
	// after everything else is known.
	b.pad(int64(header1Size + header2Size))

	partOff := b.offset()
	for _, pe := range p.partitions {
		b.writeBytes(pe.partitionKey[:])
		for _, d := range pe.data {
			b.u32(d.firstSector)
			b.u32(d.numberOfSectors)
			b.u32(d.groupIndex)
			b.u32(d.numberOfGroups)
		}
	}
	partBuf := b.buf.Bytes()[partOff:]
	partHash := sha1.Sum(partBuf)

	rawOff := b.offset()
	for _, re := range p.rawData {
		b.u64(re.dataOffset)
		b.u64(re.dataSize)
		b.u32(re.groupIndex)
		b.u32(re.numberOfGroups)
	}

	groupOff := b.offset()
	groupPatchAt := make([]int64, len(p.groups))
	for i := range p.groups {
		groupPatchAt[i] = b.offset()
		b.u32(0) // fileOffset>>2, patched below
		size := uint32(0)
		if i < len(p.groupPayloads) {
			size = uint32(len(p.groupPayloads[i]))
		}
		b.u32(size)
	}

	for i := range p.groups {
		if i >= len(p.groupPayloads) || len(p.groupPayloads[i]) == 0 {
			continue
		}
		fileOff := b.offset()
		b.writeBytes(p.groupPayloads[i])
		patch := b.buf.Bytes()[groupPatchAt[i] : groupPatchAt[i]+4]
		binary.BigEndian.PutUint32(patch, uint32(fileOff>>2))
	}

	full := b.buf.Bytes()

	// header2, in place at offset header1Size.
	h2 := full[header1Size : header1Size+header2Size]
	binary.BigEndian.PutUint32(h2[h2DiscTypeOffset:], uint32(p.discType))
	binary.BigEndian.PutUint32(h2[h2CompressionOffset:], uint32(p.compression))
	binary.BigEndian.PutUint32(h2[h2ChunkSizeOffset:], p.chunkSize)
	copy(h2[h2DiscHeaderOffset:h2DiscHeaderOffset+dheadSize], p.discHeader[:])
	binary.BigEndian.PutUint32(h2[h2NumPartEntriesOffset:], uint32(len(p.partitions)))
	binary.BigEndian.PutUint32(h2[h2PartEntrySizeOffset:], partitionEntryWireSize)
	binary.BigEndian.PutUint64(h2[h2PartEntriesOffOffset:], uint64(partOff))
	copy(h2[h2PartEntriesHashOffset:h2PartEntriesHashOffset+sha1Size], partHash[:])
	binary.BigEndian.PutUint32(h2[h2NumRawDataOffset:], uint32(len(p.rawData)))
	binary.BigEndian.PutUint64(h2[h2RawDataOffOffset:], uint64(rawOff))
	binary.BigEndian.PutUint32(h2[h2RawDataSizeOffset:], uint32(len(p.rawData)*rawDataEntrySize))
	binary.BigEndian.PutUint32(h2[h2NumGroupOffset:], uint32(len(p.groups)))
	binary.BigEndian.PutUint64(h2[h2GroupOffOffset:], uint64(groupOff))
	binary.BigEndian.PutUint32(h2[h2GroupSizeOffset:], uint32(len(p.groups)*groupEntrySize))
	h2Hash := sha1.Sum(h2)

	// header1.
	h1 := full[:header1Size]
	binary.LittleEndian.PutUint32(h1[magicOffset:], wiaMagic)
	binary.BigEndian.PutUint32(h1[versionOffset:], readCompatFloor)
	binary.BigEndian.PutUint32(h1[versionCompatOffset:], readCompatFloor)
	binary.BigEndian.PutUint32(h1[header2SizeOffset:], header2Size)
	copy(h1[header2HashOffset:header2HashOffset+sha1Size], h2Hash[:])
	binary.BigEndian.PutUint64(h1[isoFileSizeOffset:], p.isoSize)
	binary.BigEndian.PutUint64(h1[wiaFileSizeOffset:], uint64(len(full)))
	clear(h1[header1HashOffset : header1HashOffset+sha1Size])
	h1Hash := sha1.Sum(h1)
	copy(h1[header1HashOffset:header1HashOffset+sha1Size], h1Hash[:])

	return full
}
