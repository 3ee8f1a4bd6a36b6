package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"voxelworld.dev/internal/sim/world/voxel"
)

var ErrCorrupt = errors.New("rle: corrupt payload")

// EncodeRLE encodes voxels as base64 of (voxel id, run length) uvarint pairs.
func EncodeRLE(ids []voxel.Voxel) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(ids) {
		b := ids[i]
		run := 1
		for j := i + 1; j < len(ids) && ids[j] == b; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(b))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeRLE reverses EncodeRLE. limit > 0 caps the decoded length.
func DecodeRLE(b64 string, limit int) ([]voxel.Voxel, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	var out []voxel.Voxel
	for i := 0; i < len(raw); {
		b, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("%w: bad varint at %d", ErrCorrupt, i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 || run == 0 {
			return nil, fmt.Errorf("%w: bad run at %d", ErrCorrupt, i)
		}
		i += n
		if b > 0xFFFF {
			return nil, fmt.Errorf("%w: voxel id too large: %d", ErrCorrupt, b)
		}
		if limit > 0 && uint64(len(out))+run > uint64(limit) {
			return nil, fmt.Errorf("%w: more than %d voxels", ErrCorrupt, limit)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, voxel.Voxel(b))
		}
	}
	return out, nil
}

// EncodeGrid encodes every cell of g in x, y, z index order.
func EncodeGrid(g *voxel.Grid) string {
	return EncodeRLE(g.Cells())
}

func DecodeGrid(size int, b64 string) (*voxel.Grid, error) {
	cells, err := DecodeRLE(b64, size*size*size)
	if err != nil {
		return nil, err
	}
	if len(cells) != size*size*size {
		return nil, fmt.Errorf("%w: %d voxels for a chunk of %d", ErrCorrupt, len(cells), size*size*size)
	}
	g := voxel.NewGrid(size)
	copy(g.Cells(), cells)
	return g, nil
}
