package wia

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"
)

// partitionDataEntry is one of the two PartitionDataEntry records a
// partitionEntry carries: entry 0 covers the hashed region, entry 1 the
// unhashed trailing region.
type partitionDataEntry struct {
	firstSector     uint32
	numberOfSectors uint32
	groupIndex      uint32
	numberOfGroups  uint32
}

const partitionDataEntrySize = 16

func parsePartitionDataEntry(b []byte) partitionDataEntry {
	return partitionDataEntry{
		firstSector:     binary.BigEndian.Uint32(b[0:4]),
		numberOfSectors: binary.BigEndian.Uint32(b[4:8]),
		groupIndex:      binary.BigEndian.Uint32(b[8:12]),
		numberOfGroups:  binary.BigEndian.Uint32(b[12:16]),
	}
}

// partitionEntry is one row of the partition table: a Wii partition key
// plus its two data entries.
type partitionEntry struct {
	partitionKey [16]byte
	data         [2]partitionDataEntry
}

const partitionEntryWireSize = 16 + 2*partitionDataEntrySize // 0x30

// rawDataEntry is one row of the raw-data table: it covers every disc
// byte not owned by a partition.
type rawDataEntry struct {
	dataOffset     uint64
	dataSize       uint64
	groupIndex     uint32
	numberOfGroups uint32
}

const rawDataEntrySize = 0x18

// groupEntry is one row of the group table.
type groupEntry struct {
	fileOffset     uint64 // already shifted left by 2 from the on-disk field
	compressedSize uint32
}

const groupEntrySize = 0x08

// tables holds the fully parsed, host-order, immutable partition/raw-data/
// group tables loaded at Open time.
type tables struct {
	partitions []partitionEntry
	rawData    []rawDataEntry
	groups     []groupEntry
}

func loadTables(r io.ReaderAt, h2 *header2) (*tables, error) {
	partitions, err := loadPartitionTable(r, h2)
	if err != nil {
		return nil, err
	}
	rawData, err := loadRawDataTable(r, h2)
	if err != nil {
		return nil, err
	}
	groups, err := loadGroupTable(r, h2)
	if err != nil {
		return nil, err
	}
	return &tables{partitions: partitions, rawData: rawData, groups: groups}, nil
}

func loadPartitionTable(r io.ReaderAt, h2 *header2) ([]partitionEntry, error) {
	n := int(h2.numPartitionEntries)
	if n == 0 {
		return nil, nil
	}

	entrySize := int(h2.partitionEntrySize)
	if entrySize < partitionEntryWireSize {
		return nil, errCorrupt("load partition table", fmt.Errorf("partition_entry_size %d too small", entrySize))
	}

	buf := make([]byte, n*entrySize)
	if _, err := r.ReadAt(buf, int64(h2.partitionEntriesOff)); err != nil {
		return nil, errIOError("load partition table", err)
	}

	gotHash := sha1.Sum(buf)
	if !bytes.Equal(gotHash[:], h2.partitionEntriesHash[:]) {
		return nil, errCorrupt("load partition table", fmt.Errorf("partition_entries_hash mismatch"))
	}

	entries := make([]partitionEntry, n)
	for i := range n {
		row := buf[i*entrySize : (i+1)*entrySize]
		var pe partitionEntry
		copy(pe.partitionKey[:], row[0:16])
		pe.data[0] = parsePartitionDataEntry(row[16 : 16+partitionDataEntrySize])
		pe.data[1] = parsePartitionDataEntry(row[16+partitionDataEntrySize : 16+2*partitionDataEntrySize])
		entries[i] = pe
	}
	return entries, nil
}

func loadRawDataTable(r io.ReaderAt, h2 *header2) ([]rawDataEntry, error) {
	n := int(h2.numRawDataEntries)
	if n == 0 {
		return nil, nil
	}

	buf := make([]byte, n*rawDataEntrySize)
	if _, err := r.ReadAt(buf, int64(h2.rawDataEntriesOff)); err != nil {
		return nil, errIOError("load raw-data table", err)
	}

	entries := make([]rawDataEntry, n)
	for i := range n {
		row := buf[i*rawDataEntrySize : (i+1)*rawDataEntrySize]
		entries[i] = rawDataEntry{
			dataOffset:     binary.BigEndian.Uint64(row[0:8]),
			dataSize:       binary.BigEndian.Uint64(row[8:16]),
			groupIndex:     binary.BigEndian.Uint32(row[16:20]),
			numberOfGroups: binary.BigEndian.Uint32(row[20:24]),
		}
	}
	return entries, nil
}

func loadGroupTable(r io.ReaderAt, h2 *header2) ([]groupEntry, error) {
	n := int(h2.numGroupEntries)
	if n == 0 {
		return nil, nil
	}

	buf := make([]byte, n*groupEntrySize)
	if _, err := r.ReadAt(buf, int64(h2.groupEntriesOff)); err != nil {
		return nil, errIOError("load group table", err)
	}

	entries := make([]groupEntry, n)
	for i := range n {
		row := buf[i*groupEntrySize : (i+1)*groupEntrySize]
		offsetShr2 := binary.BigEndian.Uint32(row[0:4])
		entries[i] = groupEntry{
			fileOffset:     uint64(offsetShr2) << 2,
			compressedSize: binary.BigEndian.Uint32(row[4:8]),
		}
	}
	return entries, nil
}
