package raster

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"poreprep/internal/models"
)

// golang.org/x/image/tiff has no floating point sample support, so 32-bit
// float rasters are read here. Only what microscopy exports produce is
// handled: one uncompressed, chunky, single-sample strip image.

var errNotFloat = errors.New("not a 32-bit float tiff")

const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagSampleFormat    = 339

	dtShort = 3
	dtLong  = 4

	sampleFormatIEEE = 3
)

type ifdEntry struct {
	datatype uint16
	count    uint32
	raw      [4]byte
}

// readFloatTIFF decodes the first image of r. It returns errNotFloat when
// the file is a valid TIFF whose samples are not 32-bit floats.
func readFloatTIFF(r io.ReaderAt) (*models.RawIntensity, error) {
	var header [8]byte
	if _, err := r.ReadAt(header[:], 0); err != nil {
		return nil, fmt.Errorf("reading tiff header: %w", err)
	}

	var order binary.ByteOrder
	switch string(header[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("not a tiff file")
	}
	if order.Uint16(header[2:4]) != 42 {
		return nil, fmt.Errorf("not a classic tiff file")
	}

	entries, err := readIFD(r, order, int64(order.Uint32(header[4:8])))
	if err != nil {
		return nil, err
	}

	bits, err := scalar(entries, order, tagBitsPerSample, 1)
	if err != nil {
		return nil, err
	}
	format, err := scalar(entries, order, tagSampleFormat, 1)
	if err != nil {
		return nil, err
	}
	if bits != 32 || format != sampleFormatIEEE {
		return nil, errNotFloat
	}

	width, err := scalar(entries, order, tagImageWidth, 0)
	if err != nil {
		return nil, err
	}
	height, err := scalar(entries, order, tagImageLength, 0)
	if err != nil {
		return nil, err
	}
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("missing image dimensions")
	}
	if spp, err := scalar(entries, order, tagSamplesPerPixel, 1); err != nil || spp != 1 {
		return nil, fmt.Errorf("expected one sample per pixel")
	}
	if c, err := scalar(entries, order, tagCompression, 1); err != nil || c != 1 {
		return nil, fmt.Errorf("compressed float tiffs are not supported")
	}

	offsets, err := array(r, entries, order, tagStripOffsets)
	if err != nil {
		return nil, err
	}
	counts, err := array(r, entries, order, tagStripByteCounts)
	if err != nil {
		return nil, err
	}
	if len(offsets) == 0 || len(offsets) != len(counts) {
		return nil, fmt.Errorf("inconsistent strip tables")
	}

	raw := models.NewRawIntensity(int(width), int(height))
	buf := make([]byte, 0)
	n := 0
	for i, off := range offsets {
		size := int(counts[i])
		if cap(buf) < size {
			buf = make([]byte, size)
		}
		buf = buf[:size]
		if _, err := r.ReadAt(buf, int64(off)); err != nil {
			return nil, fmt.Errorf("reading strip %d: %w", i, err)
		}
		for j := 0; j+4 <= size && n < len(raw.Pix); j += 4 {
			raw.Pix[n] = math.Float32frombits(order.Uint32(buf[j : j+4]))
			n++
		}
	}
	if n != len(raw.Pix) {
		return nil, fmt.Errorf("strips hold %d samples, want %d", n, len(raw.Pix))
	}
	return raw, nil
}

func readIFD(r io.ReaderAt, order binary.ByteOrder, offset int64) (map[uint16]ifdEntry, error) {
	var countBuf [2]byte
	if _, err := r.ReadAt(countBuf[:], offset); err != nil {
		return nil, fmt.Errorf("reading ifd: %w", err)
	}
	n := int(order.Uint16(countBuf[:]))

	table := make([]byte, 12*n)
	if _, err := r.ReadAt(table, offset+2); err != nil {
		return nil, fmt.Errorf("reading ifd entries: %w", err)
	}

	entries := make(map[uint16]ifdEntry, n)
	for i := 0; i < n; i++ {
		e := table[i*12 : (i+1)*12]
		var ent ifdEntry
		ent.datatype = order.Uint16(e[2:4])
		ent.count = order.Uint32(e[4:8])
		copy(ent.raw[:], e[8:12])
		entries[order.Uint16(e[0:2])] = ent
	}
	return entries, nil
}

// scalar returns the first value of a SHORT or LONG tag, or def when the
// tag is absent
func scalar(entries map[uint16]ifdEntry, order binary.ByteOrder, tag uint16, def uint32) (uint32, error) {
	e, ok := entries[tag]
	if !ok {
		return def, nil
	}
	switch e.datatype {
	case dtShort:
		return uint32(order.Uint16(e.raw[:2])), nil
	case dtLong:
		return order.Uint32(e.raw[:]), nil
	default:
		return 0, fmt.Errorf("tag %d has unsupported type %d", tag, e.datatype)
	}
}

// array returns all values of a SHORT or LONG tag, following the offset
// when they do not fit inline
func array(r io.ReaderAt, entries map[uint16]ifdEntry, order binary.ByteOrder, tag uint16) ([]uint32, error) {
	e, ok := entries[tag]
	if !ok {
		return nil, fmt.Errorf("missing tag %d", tag)
	}

	var size int
	switch e.datatype {
	case dtShort:
		size = 2
	case dtLong:
		size = 4
	default:
		return nil, fmt.Errorf("tag %d has unsupported type %d", tag, e.datatype)
	}

	data := e.raw[:]
	if total := size * int(e.count); total > 4 {
		data = make([]byte, total)
		if _, err := r.ReadAt(data, int64(order.Uint32(e.raw[:]))); err != nil {
			return nil, fmt.Errorf("reading tag %d: %w", tag, err)
		}
	}

	out := make([]uint32, e.count)
	for i := range out {
		if size == 2 {
			out[i] = uint32(order.Uint16(data[i*2:]))
		} else {
			out[i] = order.Uint32(data[i*4:])
		}
	}
	return out, nil
}
