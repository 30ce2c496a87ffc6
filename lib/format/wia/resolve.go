package wia

import "fmt"

// entryKind distinguishes which table a resolved address came from, since
// raw-data entries and Wii partition entries use different group tables
// and, for partitions, different exception-list/sector-reconstruction
// treatment (spec §4.3, §4.6).
type entryKind int

const (
	entryRaw entryKind = iota
	entryPartitionHashed   // a partition's entry 0: hashed region, sector-reconstructed
	entryPartitionUnhashed // a partition's entry 1: unhashed trailing region, plain passthrough
)

// resolved describes one group a logical read needs to visit.
type resolved struct {
	kind          entryKind
	partitionIdx  int // valid when kind != entryRaw
	groupIndex    int // absolute index into tables.groups
	chunkStartAbs uint64
	chunkLen      int // this group's logical decompressed length (== chunkSize except possibly the final group)
	byteOffset    int // offset within the chunk where this read window starts
}

// alignDown rounds n down to the nearest multiple of size.
func alignDown(n uint64, size uint32) uint64 {
	return n - n%uint64(size)
}

// resolveRaw finds the raw-data entry covering offset and computes which
// group (chunk) of it to decompress (spec §4.3).
func resolveRaw(t *tables, discSize uint64, chunkSize uint32, offset uint64) (*resolved, error) {
	for i := range t.rawData {
		e := &t.rawData[i]
		if offset < e.dataOffset || offset >= e.dataOffset+e.dataSize {
			continue
		}

		alignedStart := alignDown(e.dataOffset, chunkSize)
		chunkIndex := int((offset - alignedStart) / uint64(chunkSize))
		chunkStartAbs := alignedStart + uint64(chunkIndex)*uint64(chunkSize)

		if uint32(chunkIndex) >= e.numberOfGroups {
			return nil, errCorrupt("resolve raw", fmt.Errorf("chunk index %d exceeds entry's %d groups", chunkIndex, e.numberOfGroups))
		}

		chunkLen := int(min(uint64(chunkSize), discSize-chunkStartAbs))
		return &resolved{
			kind:          entryRaw,
			groupIndex:    int(e.groupIndex) + chunkIndex,
			chunkStartAbs: chunkStartAbs,
			chunkLen:      chunkLen,
			byteOffset:    int(offset - chunkStartAbs),
		}, nil
	}
	return nil, errOutOfRange("resolve raw", fmt.Errorf("offset 0x%x not covered by any raw-data entry", offset))
}

// partitionDataAbs returns the partition data entry's absolute start and
// size in the cleartext disc image's byte address space.
func partitionDataAbs(d *partitionDataEntry) (start, size uint64) {
	return uint64(d.firstSector) * sectorSize, uint64(d.numberOfSectors) * sectorSize
}

// resolvePartition finds which partition (and which of its two data
// entries) covers offset, if any. It is used by the raw read path, which
// must reproduce Wii partitions as part of the full reconstructed disc.
func resolvePartition(t *tables, chunkSize uint32, offset uint64) (*resolved, error) {
	for pIdx := range t.partitions {
		p := &t.partitions[pIdx]
		for dIdx := range p.data {
			start, size := partitionDataAbs(&p.data[dIdx])
			if size == 0 || offset < start || offset >= start+size {
				continue
			}

			chunkIndex := int((offset - start) / uint64(chunkSize))
			chunkStartAbs := start + uint64(chunkIndex)*uint64(chunkSize)

			d := &p.data[dIdx]
			if uint32(chunkIndex) >= d.numberOfGroups {
				return nil, errCorrupt("resolve partition", fmt.Errorf("chunk index %d exceeds entry's %d groups", chunkIndex, d.numberOfGroups))
			}

			kind := entryPartitionHashed
			if dIdx == 1 {
				kind = entryPartitionUnhashed
			}

			chunkLen := int(min(uint64(chunkSize), start+size-chunkStartAbs))
			return &resolved{
				kind:          kind,
				partitionIdx:  pIdx,
				groupIndex:    int(d.groupIndex) + chunkIndex,
				chunkStartAbs: chunkStartAbs,
				chunkLen:      chunkLen,
				byteOffset:    int(offset - chunkStartAbs),
			}, nil
		}
	}
	return nil, nil
}

// resolveLogical is the entry point for the raw (reconstructed-disc) read
// path: it checks Wii partitions first, then falls back to the raw-data
// table, matching the fact that a partition's address range is excised
// from the raw-data table's coverage.
func resolveLogical(t *tables, discSize uint64, discType DiscType, chunkSize uint32, offset uint64) (*resolved, error) {
	if discType == DiscTypeWii {
		r, err := resolvePartition(t, chunkSize, offset)
		if err != nil {
			return nil, err
		}
		if r != nil {
			return r, nil
		}
	}
	return resolveRaw(t, discSize, chunkSize, offset)
}

// findPartitionByDataOffset locates the partition whose hashed (first)
// data entry begins at partitionDataOffset in the cleartext disc image's
// byte address space. ReadWiiDecrypted identifies its target partition
// this way rather than by table index, matching spec.md §6.2's
// read_wii_decrypted(offset, size, out, partition_data_offset) signature.
func findPartitionByDataOffset(t *tables, partitionDataOffset uint64) (int, error) {
	for pIdx := range t.partitions {
		start, size := partitionDataAbs(&t.partitions[pIdx].data[0])
		if size > 0 && start == partitionDataOffset {
			return pIdx, nil
		}
	}
	return 0, errOutOfRange("resolve wii decrypted", fmt.Errorf("no partition has a hashed data region starting at 0x%x", partitionDataOffset))
}

// resolveWiiDecrypted resolves an offset in ReadWiiDecrypted's coordinate
// space: cleartext *data-only* bytes (0x7C00 per sector, no hash bytes),
// relative to partitionDataOffset (the caller-supplied absolute offset of
// the partition's hashed entry in the cleartext disc image, spec §4.6).
func resolveWiiDecrypted(t *tables, chunkSize uint32, partitionDataOffset, dataOffset uint64) (*resolved, int, error) {
	partitionIdx, err := findPartitionByDataOffset(t, partitionDataOffset)
	if err != nil {
		return nil, 0, err
	}
	p := &t.partitions[partitionIdx]
	d := &p.data[0]

	sectorsPerChunk := chunkSize / sectorSize
	dataPerChunk := uint64(sectorsPerChunk) * wiiDataPerSector
	totalData := uint64(d.numberOfSectors) * wiiDataPerSector

	if dataOffset >= totalData {
		return nil, 0, errOutOfRange("resolve wii decrypted", fmt.Errorf("data offset 0x%x beyond partition data 0x%x", dataOffset, totalData))
	}

	chunkIndex := int(dataOffset / dataPerChunk)
	if uint32(chunkIndex) >= d.numberOfGroups {
		return nil, 0, errCorrupt("resolve wii decrypted", fmt.Errorf("chunk index %d exceeds entry's %d groups", chunkIndex, d.numberOfGroups))
	}

	chunkStartAbs := partitionDataOffset + uint64(chunkIndex)*uint64(chunkSize)
	r := &resolved{
		kind:          entryPartitionHashed,
		partitionIdx:  partitionIdx,
		groupIndex:    int(d.groupIndex) + chunkIndex,
		chunkStartAbs: chunkStartAbs,
		chunkLen:      int(min(uint64(chunkSize), uint64(d.numberOfSectors)*sectorSize-uint64(chunkIndex)*uint64(chunkSize))),
	}
	byteOffsetInData := int(dataOffset - uint64(chunkIndex)*dataPerChunk)
	return r, byteOffsetInData, nil
}
