package wia

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"testing"
)

func TestOpen_RawGameCubeDisc(t *testing.T) {
	chunkSize := uint32(sectorSize)
	chunk0 := bytes.Repeat([]byte{0x11}, int(chunkSize))
	chunk1 := bytes.Repeat([]byte{0x22}, int(chunkSize))

	data := buildWIA(synthParams{
		discType:    DiscTypeGameCube,
		compression: CompressionNone,
		chunkSize:   chunkSize,
		isoSize:     uint64(2 * chunkSize),
		rawData: []rawDataEntry{
			{dataOffset: 0, dataSize: uint64(2 * chunkSize), groupIndex: 0, numberOfGroups: 2},
		},
		groups:        []groupEntry{{}, {}},
		groupPayloads: [][]byte{chunk0, chunk1},
	})

	dec, err := Open(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if dec.DataSize() != uint64(2*chunkSize) {
		t.Errorf("DataSize() = %d, want %d", dec.DataSize(), 2*chunkSize)
	}
	if dec.DiscType() != DiscTypeGameCube {
		t.Errorf("DiscType() = %v, want GameCube", dec.DiscType())
	}
	if dec.RawSize() != uint64(len(data)) {
		t.Errorf("RawSize() = %d, want %d", dec.RawSize(), len(data))
	}
	if dec.HasFastRandomAccessInBlock() {
		t.Error("HasFastRandomAccessInBlock() = true, want false")
	}

	out := make([]byte, 2*chunkSize)
	if err := dec.Read(0, len(out), out); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	want := append(append([]byte(nil), chunk0...), chunk1...)
	if !bytes.Equal(out, want) {
		t.Error("Read() did not reproduce the concatenated chunk payloads")
	}

	// A read straddling the chunk boundary.
	straddle := make([]byte, 64)
	if err := dec.Read(uint64(chunkSize)-32, 64, straddle); err != nil {
		t.Fatalf("Read() (straddling) error = %v", err)
	}
	if !bytes.Equal(straddle, want[chunkSize-32:chunkSize+32]) {
		t.Error("straddling Read() did not match the expected window")
	}
}

func TestOpen_RawDisc_ZeroFilledGroup(t *testing.T) {
	chunkSize := uint32(sectorSize)
	data := buildWIA(synthParams{
		discType:    DiscTypeGameCube,
		compression: CompressionNone,
		chunkSize:   chunkSize,
		isoSize:     uint64(chunkSize),
		rawData: []rawDataEntry{
			{dataOffset: 0, dataSize: uint64(chunkSize), groupIndex: 0, numberOfGroups: 1},
		},
		groups:        []groupEntry{{}},
		groupPayloads: [][]byte{{}}, // compressed_size == 0: hole-punched, all zero
	})

	dec, err := Open(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	out := make([]byte, chunkSize)
	if err := dec.Read(0, len(out), out); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	for i, b := range out {
		if b != 0 {
			t.Fatalf("out[%d] = 0x%x, want 0 (zero-filled group)", i, b)
		}
	}
}

func TestOpen_Read_OutOfRange(t *testing.T) {
	chunkSize := uint32(sectorSize)
	data := buildWIA(synthParams{
		discType:    DiscTypeGameCube,
		compression: CompressionNone,
		chunkSize:   chunkSize,
		isoSize:     uint64(chunkSize),
		rawData: []rawDataEntry{
			{dataOffset: 0, dataSize: uint64(chunkSize), groupIndex: 0, numberOfGroups: 1},
		},
		groups:        []groupEntry{{}},
		groupPayloads: [][]byte{bytes.Repeat([]byte{1}, int(chunkSize))},
	})

	dec, err := Open(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	out := make([]byte, 16)
	if err := dec.Read(uint64(chunkSize)-8, 16, out); err == nil {
		t.Error("Read() expected out-of-range error, got nil")
	}
	// The decoder is now poisoned: even a previously valid range fails.
	if err := dec.Read(0, 16, out); err == nil {
		t.Error("Read() after a failure expected sticky poison error, got nil")
	}
}

// buildHashedGroupRaw wraps a cleartext [hash|data]* payload with the
// exception-list prefix (zero sublist entries, 4-byte aligned under
// CompressionNone) that decompressGroup expects to find in front of a
// Wii partition hashed-entry group's raw bytes.
func buildHashedGroupRaw(payload []byte) []byte {
	var buf bytes.Buffer
	var count [2]byte
	binary.BigEndian.PutUint16(count[:], 0)
	buf.Write(count[:])
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
	buf.Write(payload)
	return buf.Bytes()
}

func TestOpen_WiiPartition_ReadAndReadWiiDecrypted(t *testing.T) {
	sectorsPerChunk := 2
	chunkSize := uint32(sectorsPerChunk * sectorSize)

	var key [16]byte
	if _, err := rand.Read(key[:]); err != nil {
		t.Fatal(err)
	}

	payload := make([]byte, sectorsPerChunk*sectorSize)
	hashes := make([][]byte, sectorsPerChunk)
	datas := make([][]byte, sectorsPerChunk)
	for s := range sectorsPerChunk {
		h := payload[s*sectorSize : s*sectorSize+wiiHashPerSector]
		d := payload[s*sectorSize+wiiHashPerSector : (s+1)*sectorSize]
		if _, err := rand.Read(h); err != nil {
			t.Fatal(err)
		}
		if _, err := rand.Read(d); err != nil {
			t.Fatal(err)
		}
		hashes[s] = append([]byte(nil), h...)
		datas[s] = append([]byte(nil), d...)
	}
	groupRaw := buildHashedGroupRaw(payload)

	data := buildWIA(synthParams{
		discType:    DiscTypeWii,
		compression: CompressionNone,
		chunkSize:   chunkSize,
		isoSize:     uint64(sectorsPerChunk * sectorSize),
		partitions: []partitionEntry{
			{
				partitionKey: key,
				data: [2]partitionDataEntry{
					{firstSector: 0, numberOfSectors: uint32(sectorsPerChunk), groupIndex: 0, numberOfGroups: 1},
					{}, // no unhashed trailing entry
				},
			},
		},
		groups:        []groupEntry{{}},
		groupPayloads: [][]byte{groupRaw},
	})

	dec, err := Open(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	// Raw Read() must return the re-encrypted disc image: each sector
	// independently decryptable back to the original cleartext hash/data.
	out := make([]byte, sectorsPerChunk*sectorSize)
	if err := dec.Read(0, len(out), out); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	for s := range sectorsPerChunk {
		sector := out[s*sectorSize : (s+1)*sectorSize]
		gotHash, gotData, err := decryptSectorForVerification(sector, key)
		if err != nil {
			t.Fatalf("decryptSectorForVerification(sector %d) error = %v", s, err)
		}
		if !bytes.Equal(gotHash, hashes[s]) {
			t.Errorf("sector %d: decrypted hash block mismatch", s)
		}
		if !bytes.Equal(gotData, datas[s]) {
			t.Errorf("sector %d: decrypted data block mismatch", s)
		}
	}

	// ReadWiiDecrypted must return the cleartext data blocks directly, no
	// encryption, concatenated across sectors.
	if !dec.SupportsReadWiiDecrypted() {
		t.Fatal("SupportsReadWiiDecrypted() = false, want true")
	}
	wantData := append(append([]byte(nil), datas[0]...), datas[1]...)
	gotData := make([]byte, len(wantData))
	if err := dec.ReadWiiDecrypted(0, len(gotData), gotData, 0); err != nil {
		t.Fatalf("ReadWiiDecrypted() error = %v", err)
	}
	if !bytes.Equal(gotData, wantData) {
		t.Error("ReadWiiDecrypted() did not reproduce the cleartext data blocks")
	}
}
