package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// NBT tag types, as far as this codec needs to know them. Tag payloads are
// never interpreted here; join/respawn packets carry their dimension data as
// opaque blobs and the only structural requirement is knowing where one ends.
const (
	tagEnd byte = iota
	tagByte
	tagShort
	tagInt
	tagLong
	tagFloat
	tagDouble
	tagByteArray
	tagString
	tagList
	tagCompound
	tagIntArray
	tagLongArray
)

// captureNBT consumes one complete named NBT tag from r and returns its raw
// bytes, leaving the reader positioned immediately after it.
func captureNBT(r *bytes.Reader) ([]byte, error) {
	start := int(r.Size()) - r.Len()

	typ, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if typ != tagEnd {
		if err := skipNBTName(r); err != nil {
			return nil, err
		}
		if err := skipNBTPayload(r, typ); err != nil {
			return nil, err
		}
	}

	end := int(r.Size()) - r.Len()
	buf := make([]byte, end-start)
	if _, err := r.ReadAt(buf, int64(start)); err != nil {
		return nil, err
	}
	return buf, nil
}

func skipNBTName(r *bytes.Reader) error {
	n, err := readUint16(r)
	if err != nil {
		return err
	}
	_, err = r.Seek(int64(n), io.SeekCurrent)
	return err
}

func skipNBTPayload(r *bytes.Reader, typ byte) error {
	skip := func(n int64) error {
		if n > int64(r.Len()) {
			return fmt.Errorf("nbt payload overruns packet by %d bytes", n-int64(r.Len()))
		}
		_, err := r.Seek(n, io.SeekCurrent)
		return err
	}

	switch typ {
	case tagByte:
		return skip(1)
	case tagShort:
		return skip(2)
	case tagInt, tagFloat:
		return skip(4)
	case tagLong, tagDouble:
		return skip(8)
	case tagByteArray:
		n, err := readInt32(r)
		if err != nil {
			return err
		}
		return skip(int64(n))
	case tagString:
		n, err := readUint16(r)
		if err != nil {
			return err
		}
		return skip(int64(n))
	case tagList:
		elem, err := r.ReadByte()
		if err != nil {
			return err
		}
		n, err := readInt32(r)
		if err != nil {
			return err
		}
		for i := int32(0); i < n; i++ {
			if err := skipNBTPayload(r, elem); err != nil {
				return err
			}
		}
		return nil
	case tagCompound:
		for {
			child, err := r.ReadByte()
			if err != nil {
				return err
			}
			if child == tagEnd {
				return nil
			}
			if err := skipNBTName(r); err != nil {
				return err
			}
			if err := skipNBTPayload(r, child); err != nil {
				return err
			}
		}
	case tagIntArray:
		n, err := readInt32(r)
		if err != nil {
			return err
		}
		return skip(int64(n) * 4)
	case tagLongArray:
		n, err := readInt32(r)
		if err != nil {
			return err
		}
		return skip(int64(n) * 8)
	default:
		return fmt.Errorf("unknown nbt tag type 0x%02x", typ)
	}
}

// nbtBuilder assembles the small hand-built NBT compounds the limbo world
// needs (a minimal dimension codec and dimension type).
type nbtBuilder struct {
	buf bytes.Buffer
}

func (b *nbtBuilder) beginCompound(name string) *nbtBuilder {
	b.buf.WriteByte(tagCompound)
	b.writeName(name)
	return b
}

func (b *nbtBuilder) beginListOfCompounds(name string, count int32) *nbtBuilder {
	b.buf.WriteByte(tagList)
	b.writeName(name)
	b.buf.WriteByte(tagCompound)
	_ = binary.Write(&b.buf, binary.BigEndian, count)
	return b
}

// beginAnonCompound starts a compound inside a list, which carries no tag
// header of its own.
func (b *nbtBuilder) beginAnonCompound() *nbtBuilder { return b }

func (b *nbtBuilder) end() *nbtBuilder {
	b.buf.WriteByte(tagEnd)
	return b
}

func (b *nbtBuilder) putString(name, value string) *nbtBuilder {
	b.buf.WriteByte(tagString)
	b.writeName(name)
	b.writeName(value)
	return b
}

func (b *nbtBuilder) putByte(name string, value byte) *nbtBuilder {
	b.buf.WriteByte(tagByte)
	b.writeName(name)
	b.buf.WriteByte(value)
	return b
}

func (b *nbtBuilder) putInt(name string, value int32) *nbtBuilder {
	b.buf.WriteByte(tagInt)
	b.writeName(name)
	_ = binary.Write(&b.buf, binary.BigEndian, value)
	return b
}

func (b *nbtBuilder) putLong(name string, value int64) *nbtBuilder {
	b.buf.WriteByte(tagLong)
	b.writeName(name)
	_ = binary.Write(&b.buf, binary.BigEndian, value)
	return b
}

func (b *nbtBuilder) putFloat(name string, value float32) *nbtBuilder {
	b.buf.WriteByte(tagFloat)
	b.writeName(name)
	_ = binary.Write(&b.buf, binary.BigEndian, value)
	return b
}

func (b *nbtBuilder) writeName(s string) {
	_ = binary.Write(&b.buf, binary.BigEndian, uint16(len(s)))
	b.buf.WriteString(s)
}

func (b *nbtBuilder) bytes() []byte { return b.buf.Bytes() }
