package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

const maxVarIntBytes = 5

var errVarIntTooLong = errors.New("varint exceeds 5 bytes")

func readVarInt(r io.ByteReader) (int32, error) {
	var result uint32
	for i := 0; i < maxVarIntBytes; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= uint32(b&0x7F) << (7 * i)
		if b&0x80 == 0 {
			return int32(result), nil
		}
	}
	return 0, errVarIntTooLong
}

func writeVarInt(w *bytes.Buffer, v int32) {
	u := uint32(v)
	for {
		b := byte(u & 0x7F)
		u >>= 7
		if u != 0 {
			b |= 0x80
		}
		w.WriteByte(b)
		if u == 0 {
			return
		}
	}
}

func varIntLen(v int32) int {
	u := uint32(v)
	n := 1
	for u >= 0x80 {
		u >>= 7
		n++
	}
	return n
}

func readString(r *bytes.Reader, max int) (string, error) {
	n, err := readVarInt(r)
	if err != nil {
		return "", err
	}
	if n < 0 || int(n) > max || int(n) > r.Len() {
		return "", fmt.Errorf("string length %d out of bounds", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeString(w *bytes.Buffer, s string) {
	writeVarInt(w, int32(len(s)))
	w.WriteString(s)
}

func readBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	return b != 0, err
}

func writeBool(w *bytes.Buffer, v bool) {
	if v {
		w.WriteByte(1)
	} else {
		w.WriteByte(0)
	}
}

func readUint16(r *bytes.Reader) (uint16, error) {
	var v uint16
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

func readInt32(r *bytes.Reader) (int32, error) {
	var v int32
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

func writeInt32(w *bytes.Buffer, v int32) {
	_ = binary.Write(w, binary.BigEndian, v)
}

func readInt64(r *bytes.Reader) (int64, error) {
	var v int64
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

func writeInt64(w *bytes.Buffer, v int64) {
	_ = binary.Write(w, binary.BigEndian, v)
}

func readFloat64(r *bytes.Reader) (float64, error) {
	var v float64
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

func writeFloat64(w *bytes.Buffer, v float64) {
	_ = binary.Write(w, binary.BigEndian, v)
}

func readFloat32(r *bytes.Reader) (float32, error) {
	var v float32
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

func writeFloat32(w *bytes.Buffer, v float32) {
	_ = binary.Write(w, binary.BigEndian, v)
}

func readUUID(r *bytes.Reader) (uuid.UUID, error) {
	var id uuid.UUID
	if _, err := io.ReadFull(r, id[:]); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func writeUUID(w *bytes.Buffer, id uuid.UUID) {
	w.Write(id[:])
}

func readByteArray(r *bytes.Reader) ([]byte, error) {
	n, err := readVarInt(r)
	if err != nil {
		return nil, err
	}
	if n < 0 || int(n) > r.Len() {
		return nil, fmt.Errorf("byte array length %d out of bounds", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeByteArray(w *bytes.Buffer, b []byte) {
	writeVarInt(w, int32(len(b)))
	w.Write(b)
}

// remaining drains the rest of the reader's contents into a fresh slice.
func remaining(r *bytes.Reader) []byte {
	buf := make([]byte, r.Len())
	_, _ = io.ReadFull(r, buf)
	return buf
}

func parseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}
