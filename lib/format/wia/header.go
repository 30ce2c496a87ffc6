package wia

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"
)

// Wire sizes and offsets for the two fixed headers. All multi-byte
// on-disk fields are big-endian; the decoder byte-swaps into host order
// on load and works in host order from then on.
const (
	header1Size = 0x48
	header2Size = 0xDC

	magicOffset          = 0x00
	versionOffset        = 0x04
	versionCompatOffset  = 0x08
	header2SizeOffset    = 0x0C
	header2HashOffset    = 0x10
	isoFileSizeOffset    = 0x24
	wiaFileSizeOffset    = 0x2C
	header1HashOffset    = 0x34
	sha1Size             = 20

	// wiaMagic is "WIA\x01" read as little-endian uint32.
	wiaMagic uint32 = 0x01414957

	// readCompatFloor is the lowest version_compatible this decoder
	// accepts.
	readCompatFloor uint32 = 0x00080000

	sectorSize       = 0x8000
	wiiDataPerSector = 0x7C00
	wiiHashPerSector = 0x400
	dheadSize        = 0x80
)

// DiscType is the on-disk disc_type field of Header2.
type DiscType uint32

const (
	DiscTypeGameCube DiscType = 1
	DiscTypeWii      DiscType = 2
)

// Compression is the on-disk compression_type field of Header2.
type Compression uint32

const (
	CompressionNone   Compression = 0
	CompressionPurge  Compression = 1
	CompressionBzip2  Compression = 2
	CompressionLZMA   Compression = 3
	CompressionLZMA2  Compression = 4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionPurge:
		return "purge"
	case CompressionBzip2:
		return "bzip2"
	case CompressionLZMA:
		return "lzma"
	case CompressionLZMA2:
		return "lzma2"
	default:
		return fmt.Sprintf("compression(%d)", uint32(c))
	}
}

// header1 is the first 0x48 bytes of a WIA file, decoded to host order.
type header1 struct {
	version           uint32
	versionCompatible uint32
	header2Size       uint32
	header2Hash       [sha1Size]byte
	isoFileSize       uint64
	wiaFileSize       uint64
}

// header2 is the 0xDC-byte structure immediately following header1.
type header2 struct {
	discType            DiscType
	compression         Compression
	compressionLevel    int32
	chunkSize           uint32
	discHeader          [dheadSize]byte
	numPartitionEntries  uint32
	partitionEntrySize   uint32
	partitionEntriesOff  uint64
	partitionEntriesHash [sha1Size]byte
	numRawDataEntries   uint32
	rawDataEntriesOff   uint64
	rawDataEntriesSize  uint32
	numGroupEntries     uint32
	groupEntriesOff     uint64
	groupEntriesSize    uint32
	compressorDataSize  uint8
	compressorData      [7]byte
}

// readHeaders reads and validates Header1 and Header2 from the start of
// the file, per spec §4.1: magic check, both SHA-1 self-hashes, and the
// read-compat floor.
func readHeaders(r io.ReaderAt) (*header1, *header2, error) {
	buf1 := make([]byte, header1Size)
	if _, err := r.ReadAt(buf1, 0); err != nil {
		return nil, nil, errIOError("read header1", err)
	}

	magic := binary.LittleEndian.Uint32(buf1[magicOffset:])
	if magic != wiaMagic {
		return nil, nil, errUnsupportedFormat("read header1", fmt.Errorf("bad magic 0x%08x", magic))
	}

	// header_1_hash covers the first header1Size bytes with the hash
	// field itself zeroed during computation.
	hashed := make([]byte, header1Size)
	copy(hashed, buf1)
	clear(hashed[header1HashOffset : header1HashOffset+sha1Size])
	gotHash := sha1.Sum(hashed)
	wantHash := buf1[header1HashOffset : header1HashOffset+sha1Size]
	if !bytes.Equal(gotHash[:], wantHash) {
		return nil, nil, errCorrupt("verify header1", fmt.Errorf("header_1_hash mismatch"))
	}

	h1 := &header1{
		version:           binary.BigEndian.Uint32(buf1[versionOffset:]),
		versionCompatible: binary.BigEndian.Uint32(buf1[versionCompatOffset:]),
		header2Size:       binary.BigEndian.Uint32(buf1[header2SizeOffset:]),
		isoFileSize:       binary.BigEndian.Uint64(buf1[isoFileSizeOffset:]),
		wiaFileSize:       binary.BigEndian.Uint64(buf1[wiaFileSizeOffset:]),
	}
	copy(h1.header2Hash[:], buf1[header2HashOffset:header2HashOffset+sha1Size])

	if h1.versionCompatible < readCompatFloor {
		return nil, nil, errUnsupportedFormat("read header1", fmt.Errorf(
			"version_compatible 0x%08x below read floor 0x%08x", h1.versionCompatible, readCompatFloor))
	}
	if h1.header2Size < header2Size {
		return nil, nil, errCorrupt("read header1", fmt.Errorf("header_2_size %d too small", h1.header2Size))
	}

	buf2 := make([]byte, h1.header2Size)
	if _, err := r.ReadAt(buf2, header1Size); err != nil {
		return nil, nil, errIOError("read header2", err)
	}

	gotH2Hash := sha1.Sum(buf2)
	if !bytes.Equal(gotH2Hash[:], h1.header2Hash[:]) {
		return nil, nil, errCorrupt("verify header2", fmt.Errorf("header_2_hash mismatch"))
	}

	h2, err := parseHeader2(buf2)
	if err != nil {
		return nil, nil, err
	}

	return h1, h2, nil
}

// Header2 field offsets, relative to the start of header2's buffer.
const (
	h2DiscTypeOffset        = 0x00
	h2CompressionOffset     = 0x04
	h2ComprLevelOffset      = 0x08
	h2ChunkSizeOffset       = 0x0C
	h2DiscHeaderOffset      = 0x10
	h2NumPartEntriesOffset  = 0x90
	h2PartEntrySizeOffset   = 0x94
	h2PartEntriesOffOffset  = 0x98
	h2PartEntriesHashOffset = 0xA0
	h2NumRawDataOffset      = 0xB4
	h2RawDataOffOffset      = 0xB8
	h2RawDataSizeOffset     = 0xC0
	h2NumGroupOffset        = 0xC4
	h2GroupOffOffset        = 0xC8
	h2GroupSizeOffset       = 0xD0
	h2ComprDataSizeOffset   = 0xD4
	h2ComprDataOffset       = 0xD5
)

func parseHeader2(buf []byte) (*header2, error) {
	if len(buf) < header2Size {
		return nil, errCorrupt("parse header2", fmt.Errorf("short header2: %d bytes", len(buf)))
	}

	discType := DiscType(binary.BigEndian.Uint32(buf[h2DiscTypeOffset:]))
	if discType != DiscTypeGameCube && discType != DiscTypeWii {
		return nil, errUnsupportedFormat("parse header2", fmt.Errorf("unknown disc_type %d", discType))
	}

	compression := Compression(binary.BigEndian.Uint32(buf[h2CompressionOffset:]))
	switch compression {
	case CompressionNone, CompressionPurge, CompressionBzip2, CompressionLZMA, CompressionLZMA2:
	default:
		return nil, errUnsupportedFormat("parse header2", fmt.Errorf("unknown compression_type %d", compression))
	}

	chunkSize := binary.BigEndian.Uint32(buf[h2ChunkSizeOffset:])
	if chunkSize == 0 || chunkSize%0x8000 != 0 {
		return nil, errCorrupt("parse header2", fmt.Errorf("chunk_size 0x%x not a multiple of sector size", chunkSize))
	}

	h2 := &header2{
		discType:            discType,
		compression:         compression,
		compressionLevel:    int32(binary.BigEndian.Uint32(buf[h2ComprLevelOffset:])),
		chunkSize:            chunkSize,
		numPartitionEntries:  binary.BigEndian.Uint32(buf[h2NumPartEntriesOffset:]),
		partitionEntrySize:   binary.BigEndian.Uint32(buf[h2PartEntrySizeOffset:]),
		partitionEntriesOff:  binary.BigEndian.Uint64(buf[h2PartEntriesOffOffset:]),
		numRawDataEntries:   binary.BigEndian.Uint32(buf[h2NumRawDataOffset:]),
		rawDataEntriesOff:   binary.BigEndian.Uint64(buf[h2RawDataOffOffset:]),
		rawDataEntriesSize:  binary.BigEndian.Uint32(buf[h2RawDataSizeOffset:]),
		numGroupEntries:     binary.BigEndian.Uint32(buf[h2NumGroupOffset:]),
		groupEntriesOff:     binary.BigEndian.Uint64(buf[h2GroupOffOffset:]),
		groupEntriesSize:    binary.BigEndian.Uint32(buf[h2GroupSizeOffset:]),
		compressorDataSize:  buf[h2ComprDataSizeOffset],
	}
	copy(h2.discHeader[:], buf[h2DiscHeaderOffset:h2DiscHeaderOffset+dheadSize])
	copy(h2.partitionEntriesHash[:], buf[h2PartEntriesHashOffset:h2PartEntriesHashOffset+sha1Size])

	if int(h2.compressorDataSize) > len(h2.compressorData) {
		return nil, errCorrupt("parse header2", fmt.Errorf("compressor_data_size %d too large", h2.compressorDataSize))
	}
	copy(h2.compressorData[:], buf[h2ComprDataOffset:h2ComprDataOffset+int(h2.compressorDataSize)])

	return h2, nil
}
