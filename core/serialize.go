package core

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

// SerializationHeader provides metadata for a serialized batch of arrays
type SerializationHeader struct {
	Magic    uint32 // "SCNA" magic number
	Version  uint16 // format version
	Count    uint32 // number of arrays
	Checksum uint64 // xxhash64 of the array data
	Reserved uint32 // padding for future use
}

const (
	SerializationMagic   = 0x414E4353 // "SCNA" in little endian
	SerializationVersion = 1
	HeaderSize           = 22 // packed sizeof(SerializationHeader)

	maxRank = 32
)

// SerializeArray writes an Array to a byte slice in binary form.
// Layout: [DType(1)][Rank(1)][Dims(8*rank)][len(Payload)(4)][Payload bytes]
func SerializeArray(a *Array) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := writeArray(buf, a); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeArray(buf *bytes.Buffer, a *Array) error {
	if a == nil {
		return errors.New("cannot serialize nil array")
	}
	if a.Rank() > maxRank {
		return fmt.Errorf("rank %d exceeds maximum %d", a.Rank(), maxRank)
	}
	buf.WriteByte(byte(a.dtype))
	buf.WriteByte(byte(a.Rank()))
	for _, d := range a.shape {
		if err := binary.Write(buf, binary.LittleEndian, int64(d)); err != nil {
			return err
		}
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(a.data))); err != nil {
		return err
	}
	buf.Write(a.data)
	return nil
}

// DeserializeArray reads a single Array from a byte slice.
func DeserializeArray(b []byte) (*Array, error) {
	return readArray(bytes.NewReader(b))
}

func readArray(r *bytes.Reader) (*Array, error) {
	dt, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	dtype := DType(dt)
	if !dtype.Valid() {
		return nil, fmt.Errorf("invalid dtype byte %d", dt)
	}

	rank, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if rank > maxRank {
		return nil, fmt.Errorf("rank %d exceeds maximum %d", rank, maxRank)
	}

	shape := make([]int, rank)
	for i := range shape {
		var d int64
		if err := binary.Read(r, binary.LittleEndian, &d); err != nil {
			return nil, err
		}
		if d < 0 {
			return nil, fmt.Errorf("negative dimension %d", d)
		}
		shape[i] = int(d)
	}

	var payloadLen uint32
	if err := binary.Read(r, binary.LittleEndian, &payloadLen); err != nil {
		return nil, err
	}
	if want := numElements(shape) * dtype.Size(); int(payloadLen) != want {
		return nil, fmt.Errorf("payload length %d does not match shape %v of %s (%d bytes)", payloadLen, shape, dtype, want)
	}

	a := NewArray(dtype, shape...)
	if _, err := io.ReadFull(r, a.data); err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return a, nil
}

// BatchSerializeArrays serializes several arrays back to back.
func BatchSerializeArrays(arrays []*Array) ([]byte, error) {
	if len(arrays) == 0 {
		return nil, nil
	}

	// Pre-calculate total size for single allocation
	totalSize := 0
	for _, a := range arrays {
		if a != nil {
			totalSize += 2 + 8*a.Rank() + 4 + len(a.data)
		}
	}

	buffer := bytes.NewBuffer(make([]byte, 0, totalSize))
	for i, a := range arrays {
		if err := writeArray(buffer, a); err != nil {
			return nil, fmt.Errorf("array %d: %w", i, err)
		}
	}
	return buffer.Bytes(), nil
}

// BatchDeserializeArrays reads count arrays written by BatchSerializeArrays.
func BatchDeserializeArrays(data []byte, count int) ([]*Array, error) {
	if count == 0 {
		return nil, nil
	}
	r := bytes.NewReader(data)
	arrays := make([]*Array, 0, count)
	for i := 0; i < count; i++ {
		a, err := readArray(r)
		if err != nil {
			return nil, fmt.Errorf("array %d: %w", i, err)
		}
		arrays = append(arrays, a)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after %d arrays", r.Len(), count)
	}
	return arrays, nil
}

// SerializeWithHeader creates a complete serialized format with integrity checking
func SerializeWithHeader(arrays []*Array) ([]byte, error) {
	arrayData, err := BatchSerializeArrays(arrays)
	if err != nil {
		return nil, err
	}

	header := SerializationHeader{
		Magic:    SerializationMagic,
		Version:  SerializationVersion,
		Count:    uint32(len(arrays)),
		Checksum: xxhash.Sum64(arrayData),
	}

	buffer := bytes.NewBuffer(make([]byte, 0, HeaderSize+len(arrayData)))
	if err := binary.Write(buffer, binary.LittleEndian, header); err != nil {
		return nil, err
	}
	buffer.Write(arrayData)
	return buffer.Bytes(), nil
}

// DeserializeWithHeader reads a complete serialized format with integrity checking
func DeserializeWithHeader(data []byte) ([]*Array, error) {
	if len(data) < HeaderSize {
		return nil, errors.New("data too short for header")
	}

	var header SerializationHeader
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &header); err != nil {
		return nil, err
	}
	if header.Magic != SerializationMagic {
		return nil, errors.New("invalid magic number")
	}
	if header.Version != SerializationVersion {
		return nil, errors.New("unsupported serialization version")
	}

	arrayData := data[HeaderSize:]
	if xxhash.Sum64(arrayData) != header.Checksum {
		return nil, errors.New("data corruption detected")
	}
	return BatchDeserializeArrays(arrayData, int(header.Count))
}

// WriteArrays writes arrays with a header to w.
func WriteArrays(w io.Writer, arrays []*Array) error {
	data, err := SerializeWithHeader(arrays)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ReadArrays reads everything from r and decodes it with DeserializeWithHeader.
func ReadArrays(r io.Reader) ([]*Array, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return DeserializeWithHeader(data)
}
