package wia

import (
	"encoding/binary"
	"fmt"
)

// hashException is one {offset, hash} override into a sector's 0x400-byte
// hash area, already resolved to which sector (within its group) it
// targets (spec §3, §4.4).
type hashException struct {
	sector     int    // sector index within the group
	hashOffset uint16 // byte offset within that sector's 0x400-byte hash area
	hash       [sha1Size]byte
}

const hashExceptionWireSize = 2 + sha1Size

// exceptionTerritory is the number of cleartext bytes (0x200000, 0x40
// sectors) each exception sublist covers. A u16 offset field ranges
// 0..0xFFFF, which is exactly sectorsPerTerritory*wiiHashPerSector
// (0x40*0x400 = 0x10000) — the on-disk offset is relative to the virtual
// concatenation of every sector's hash area within one sublist's
// territory, not to a single sector, which is how a 16-bit field can
// address hash bytes across up to 0x40 sectors at once.
const exceptionTerritory = 0x200000
const sectorsPerTerritory = exceptionTerritory / sectorSize

// readExceptionLists reads the sublists preceding a group's decompressed
// payload: one u16-count-prefixed sublist per 0x200000-byte territory of
// the region this group covers, and resolves each entry's raw offset to
// a (sector, hashOffset) pair.
//
// Under CompressionNone the payload that follows must start 4-byte
// aligned (spec §4.4's documented quirk); other compressors have no such
// alignment requirement.
func readExceptionLists(r *groupByteReader, regionSize int, compression Compression) ([]hashException, error) {
	numSublists := (regionSize + exceptionTerritory - 1) / exceptionTerritory
	if numSublists == 0 {
		numSublists = 1
	}

	var all []hashException
	for t := range numSublists {
		countBuf, err := r.readN(2)
		if err != nil {
			return nil, errCorrupt("read exception list", fmt.Errorf("read sublist count: %w", err))
		}
		count := binary.BigEndian.Uint16(countBuf)

		for range count {
			rec, err := r.readN(hashExceptionWireSize)
			if err != nil {
				return nil, errCorrupt("read exception list", fmt.Errorf("read exception entry: %w", err))
			}
			rawOffset := binary.BigEndian.Uint16(rec[0:2])
			he := hashException{
				sector:     t*sectorsPerTerritory + int(rawOffset)/wiiHashPerSector,
				hashOffset: rawOffset % wiiHashPerSector,
			}
			copy(he.hash[:], rec[2:2+sha1Size])
			all = append(all, he)
		}
	}

	if compression == CompressionNone {
		r.alignUp(4)
	}

	return all, nil
}

// exceptionsForSector filters exceptions down to those targeting a
// specific sector index; each entry's hashOffset is already relative to
// that sector's hash area and is returned unchanged.
func exceptionsForSector(exceptions []hashException, sector int) []hashException {
	var out []hashException
	for _, ex := range exceptions {
		if ex.sector == sector {
			out = append(out, ex)
		}
	}
	return out
}

// groupByteReader is a small cursor over a group's raw compressed input,
// used only to walk past the exception-list prefix before handing the
// remaining bytes to the group's decompressor (the lists themselves are
// never compressed, per spec §4.4/§4.6).
type groupByteReader struct {
	data []byte
	pos  int
}

func newGroupByteReader(data []byte) *groupByteReader {
	return &groupByteReader{data: data}
}

func (g *groupByteReader) readN(n int) ([]byte, error) {
	if g.pos+n > len(g.data) {
		return nil, fmt.Errorf("unexpected EOF: need %d bytes, have %d", n, len(g.data)-g.pos)
	}
	b := g.data[g.pos : g.pos+n]
	g.pos += n
	return b, nil
}

func (g *groupByteReader) alignUp(n int) {
	if rem := g.pos % n; rem != 0 {
		g.pos += n - rem
	}
}

// remainder returns the bytes following everything consumed so far —
// the group's actual (still compressed) payload.
func (g *groupByteReader) remainder() []byte {
	return g.data[g.pos:]
}
