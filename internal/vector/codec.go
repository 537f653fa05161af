package vector

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
)

// On-disk layout, little endian:
//
//	magic "KHIX" | version u16 | flavor u8 | reserved u8 | dim u32 | count u64
//	nlist u32 | nprobe u32 | nlist*dim f32 centroids
//	count * (id u64 | list u32 | dim f32)
//	crc32 (IEEE) of all preceding bytes
var magic = [4]byte{'K', 'H', 'I', 'X'}

const codecVersion uint16 = 1

const (
	codeFlat uint8 = 0
	codeIVF  uint8 = 1
)

// Header bounds checked before any allocation sized from the header.
const (
	maxDim   = 1 << 16
	maxNList = 1 << 16
)

type header struct {
	Magic    [4]byte
	Version  uint16
	Flavor   uint8
	Reserved uint8
	Dim      uint32
	Count    uint64
	NList    uint32
	NProbe   uint32
}

func encode(w io.Writer, s structure, dim int) error {
	crc := crc32.NewIEEE()
	bw := bufio.NewWriterSize(io.MultiWriter(w, crc), 1<<20)

	h := header{Magic: magic, Version: codecVersion, Dim: uint32(dim), Count: uint64(s.len())}
	var centroids [][]float32
	if x, ok := s.(*ivf); ok {
		h.Flavor = codeIVF
		h.NList = uint32(len(x.centroids))
		h.NProbe = uint32(x.nprobe)
		centroids = x.centroids
	}
	if err := binary.Write(bw, binary.LittleEndian, h); err != nil {
		return err
	}
	buf := make([]byte, 4*dim)
	for _, c := range centroids {
		if err := writeVector(bw, buf, c); err != nil {
			return err
		}
	}

	var err error
	writeEntry := func(id uint64, list uint32, v []float32) {
		if err != nil {
			return
		}
		var meta [12]byte
		binary.LittleEndian.PutUint64(meta[:8], id)
		binary.LittleEndian.PutUint32(meta[8:], list)
		if _, err = bw.Write(meta[:]); err != nil {
			return
		}
		err = writeVector(bw, buf, v)
	}
	if x, ok := s.(*ivf); ok {
		for li, pl := range x.lists {
			for i, v := range pl.vecs {
				writeEntry(pl.ids[i], uint32(li), v)
			}
		}
	} else {
		s.each(func(id uint64, v []float32) { writeEntry(id, 0, v) })
	}
	if err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, crc.Sum32())
}

func writeVector(w io.Writer, buf []byte, v []float32) error {
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	_, err := w.Write(buf[:len(v)*4])
	return err
}

// decode reads an index written by encode. Any structural problem or
// checksum failure is reported as ErrCorruptIndex.
func decode(r io.Reader) (structure, int, error) {
	br := bufio.NewReaderSize(r, 1<<20)
	crc := crc32.NewIEEE()
	tr := io.TeeReader(br, crc)

	var h header
	if err := binary.Read(tr, binary.LittleEndian, &h); err != nil {
		return nil, 0, corrupt("header", err)
	}
	if h.Magic != magic {
		return nil, 0, fmt.Errorf("%w: bad magic %q", ErrCorruptIndex, h.Magic[:])
	}
	if h.Version != codecVersion {
		return nil, 0, fmt.Errorf("%w: unsupported version %d", ErrCorruptIndex, h.Version)
	}
	if h.Dim > maxDim {
		return nil, 0, fmt.Errorf("%w: dimension %d exceeds %d", ErrCorruptIndex, h.Dim, maxDim)
	}
	dim := int(h.Dim)
	if dim == 0 && h.Count > 0 {
		return nil, 0, fmt.Errorf("%w: zero dimension", ErrCorruptIndex)
	}

	buf := make([]byte, 4*dim)
	var s structure
	switch h.Flavor {
	case codeFlat:
		s = newFlat()
	case codeIVF:
		if h.NList == 0 {
			return nil, 0, fmt.Errorf("%w: ivf without centroids", ErrCorruptIndex)
		}
		if h.NList > maxNList || dim == 0 {
			return nil, 0, fmt.Errorf("%w: nlist %d out of range", ErrCorruptIndex, h.NList)
		}
		centroids := make([][]float32, h.NList)
		for i := range centroids {
			v, err := readVector(tr, buf, dim)
			if err != nil {
				return nil, 0, corrupt("centroids", err)
			}
			centroids[i] = v
		}
		s = newIVF(centroids, int(h.NProbe))
	default:
		return nil, 0, fmt.Errorf("%w: unknown flavor %d", ErrCorruptIndex, h.Flavor)
	}

	var meta [12]byte
	for n := uint64(0); n < h.Count; n++ {
		if _, err := io.ReadFull(tr, meta[:]); err != nil {
			return nil, 0, corrupt("entries", err)
		}
		id := binary.LittleEndian.Uint64(meta[:8])
		list := binary.LittleEndian.Uint32(meta[8:])
		v, err := readVector(tr, buf, dim)
		if err != nil {
			return nil, 0, corrupt("entries", err)
		}
		if s.has(id) {
			return nil, 0, fmt.Errorf("%w: duplicate id %d", ErrCorruptIndex, id)
		}
		if x, ok := s.(*ivf); ok {
			if int(list) >= len(x.lists) {
				return nil, 0, fmt.Errorf("%w: list %d out of range", ErrCorruptIndex, list)
			}
			x.addToList(int(list), id, v)
		} else {
			s.add(id, v)
		}
	}

	want := crc.Sum32()
	var got uint32
	if err := binary.Read(br, binary.LittleEndian, &got); err != nil {
		return nil, 0, corrupt("checksum", err)
	}
	if got != want {
		return nil, 0, fmt.Errorf("%w: checksum mismatch", ErrCorruptIndex)
	}
	if _, err := br.ReadByte(); !errors.Is(err, io.EOF) {
		return nil, 0, fmt.Errorf("%w: trailing data", ErrCorruptIndex)
	}
	return s, dim, nil
}

func readVector(r io.Reader, buf []byte, dim int) ([]float32, error) {
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}

func corrupt(section string, err error) error {
	return fmt.Errorf("%w: reading %s: %v", ErrCorruptIndex, section, err)
}
