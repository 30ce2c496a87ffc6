package wia

import (
	"github.com/sargunv/wia/internal/util"
)

// DiscHeader exposes the platform/title/serial accessors a disc image's
// embedded 0x80-byte GameCube/Wii header carries, echoing the shape of
// the teacher's lib/identify.GameInfo interface without depending on it.
// The bytes backing DiscHeader are Header2's disc_header field (spec.md's
// glossary entry for "disc header"), already read in cleartext at Open
// time — no decompressed read is needed to answer these.
type DiscHeader struct {
	raw [dheadSize]byte
}

func newDiscHeader(raw [dheadSize]byte) DiscHeader {
	return DiscHeader{raw: raw}
}

// DiscHeader returns the decoder's cached copy of the embedded disc
// header.
func (d *Decoder) DiscHeader() DiscHeader {
	return newDiscHeader(d.header2.discHeader)
}

// GamePlatform reports the disc type this header describes, matching
// Header2's own disc_type field (they are required to agree; spec.md
// doesn't say what to do if they don't, so this accessor simply trusts
// disc_type rather than re-deriving it from the magic words at 0x18/0x1C).
func (d *Decoder) GamePlatform() DiscType {
	return d.header2.discType
}

// GameSerial returns the four-character game code: one system-code byte,
// a two-character game code, and one region byte (e.g. "GMKE").
func (h DiscHeader) GameSerial() string {
	return util.ExtractASCII(h.raw[0:4])
}

// GameTitle returns the null-terminated ASCII title stored at offset
// 0x20 of the disc header.
func (h DiscHeader) GameTitle() string {
	return util.ExtractASCII(h.raw[0x20:dheadSize])
}
