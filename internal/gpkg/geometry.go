package gpkg

import (
	"bytes"
	"encoding/binary"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

const (
	flagLittleEndian = 0x01
	flagEnvelopeXY   = 0x01 << 1
	flagEmpty        = 0x10
	envelopeMask     = 0x0e
)

// EncodeGeometry returns the GeoPackage binary form of g: the "GP" header
// with SRS id and XY envelope followed by little-endian WKB. A nil geometry
// encodes as nil, stored as SQL NULL.
func EncodeGeometry(g geom.T, srid int) ([]byte, error) {
	if g == nil {
		return nil, nil
	}

	empty := len(g.FlatCoords()) == 0
	_, isPoint := g.(*geom.Point)

	flags := byte(flagLittleEndian)
	withEnvelope := !empty && !isPoint
	if withEnvelope {
		flags |= flagEnvelopeXY
	}
	if empty {
		flags |= flagEmpty
	}

	var buf bytes.Buffer
	buf.Write([]byte{'G', 'P', 0, flags})
	_ = binary.Write(&buf, binary.LittleEndian, int32(srid))
	if withEnvelope {
		b := g.Bounds()
		_ = binary.Write(&buf, binary.LittleEndian, [4]float64{b.Min(0), b.Max(0), b.Min(1), b.Max(1)})
	}

	data, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: encode WKB")
	}
	buf.Write(data)
	return buf.Bytes(), nil
}

// DecodeGeometry parses a GeoPackage geometry blob, returning the geometry
// and the SRS id from its header.
func DecodeGeometry(blob []byte) (geom.T, int, error) {
	if blob == nil {
		return nil, 0, nil
	}
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, 0, eris.New("gpkg: not a geopackage geometry")
	}

	flags := blob[3]
	var order binary.ByteOrder = binary.BigEndian
	if flags&flagLittleEndian != 0 {
		order = binary.LittleEndian
	}
	srid := int(int32(order.Uint32(blob[4:8])))

	var envelope int
	switch (flags & envelopeMask) >> 1 {
	case 0:
	case 1:
		envelope = 32
	case 2, 3:
		envelope = 48
	case 4:
		envelope = 64
	default:
		return nil, 0, eris.Errorf("gpkg: invalid envelope flags %#x", flags)
	}
	if len(blob) < 8+envelope {
		return nil, 0, eris.New("gpkg: truncated geometry header")
	}

	g, err := wkb.Unmarshal(blob[8+envelope:])
	if err != nil {
		return nil, 0, eris.Wrap(err, "gpkg: decode WKB")
	}
	return g, srid, nil
}
