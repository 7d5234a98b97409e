// Package appframe implements the file-transfer packet framing that rides
// on top of a link connection: START, DATA, and END packets, each one
// passed whole to a single link Write/Read so the link layer's own framing
// and acknowledgement never has to know about file semantics.
package appframe

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fenwick-labs/serialink/pkg/bytebuffer"
)

const (
	typeData  byte = 0x01
	typeStart byte = 0x02
	typeEnd   byte = 0x03

	tagFileSize byte = 0x01
	tagFileName byte = 0x02
)

// ErrMalformedPacket is returned when a decoded packet's structure doesn't
// match one of the three recognized shapes.
var ErrMalformedPacket = errors.New("appframe: malformed packet")

// ErrFileNameTooLong is returned when a file name can't fit in the single
// byte the START packet's length field allows.
var ErrFileNameTooLong = errors.New("appframe: file name exceeds 255 bytes")

// ErrSizeMismatch is returned when the bytes actually received don't match
// the file_size a START packet promised.
var ErrSizeMismatch = errors.New("appframe: received byte count does not match announced file size")

// minimalLE returns v encoded little-endian in the fewest bytes that can
// hold it, at least one.
func minimalLE(v uint64) []byte {
	var full [8]byte
	binary.LittleEndian.PutUint64(full[:], v)
	n := 8
	for n > 1 && full[n-1] == 0 {
		n--
	}
	return full[:n]
}

func decodeLE(b []byte) uint64 {
	var full [8]byte
	copy(full[:], b)
	return binary.LittleEndian.Uint64(full[:])
}

func buildStart(fileSize uint64, fileName string) ([]byte, error) {
	if len(fileName) > 255 {
		return nil, ErrFileNameTooLong
	}
	sizeBytes := minimalLE(fileSize)

	buf := bytebuffer.New()
	buf.Push(typeStart)
	buf.Push(tagFileSize)
	buf.Push(byte(len(sizeBytes)))
	buf.PushRange(sizeBytes)
	buf.Push(tagFileName)
	buf.Push(byte(len(fileName)))
	buf.PushRange([]byte(fileName))
	return buf.Bytes(), nil
}

func parseStart(data []byte) (fileSize uint64, fileName string, err error) {
	if len(data) < 3 || data[0] != typeStart || data[1] != tagFileSize {
		return 0, "", fmt.Errorf("%w: not a START packet", ErrMalformedPacket)
	}
	l1 := int(data[2])
	pos := 3
	if pos+l1 > len(data) {
		return 0, "", fmt.Errorf("%w: START file_size field truncated", ErrMalformedPacket)
	}
	fileSize = decodeLE(data[pos : pos+l1])
	pos += l1

	if pos+2 > len(data) || data[pos] != tagFileName {
		return 0, "", fmt.Errorf("%w: START missing file_name field", ErrMalformedPacket)
	}
	l2 := int(data[pos+1])
	pos += 2
	if pos+l2 > len(data) {
		return 0, "", fmt.Errorf("%w: START file_name field truncated", ErrMalformedPacket)
	}
	fileName = string(data[pos : pos+l2])
	return fileSize, fileName, nil
}

func buildData(seq byte, payload []byte) []byte {
	buf := bytebuffer.New()
	buf.Push(typeData)
	buf.Push(seq)
	buf.Push(byte(len(payload) >> 8))
	buf.Push(byte(len(payload)))
	buf.PushRange(payload)
	return buf.Bytes()
}

func parseData(data []byte) (seq byte, payload []byte, err error) {
	if len(data) < 4 || data[0] != typeData {
		return 0, nil, fmt.Errorf("%w: not a DATA packet", ErrMalformedPacket)
	}
	seq = data[1]
	size := int(data[2])<<8 | int(data[3])
	if len(data) < 4+size {
		return 0, nil, fmt.Errorf("%w: DATA payload truncated", ErrMalformedPacket)
	}
	return seq, data[4 : 4+size], nil
}

func buildEnd() []byte {
	return []byte{typeEnd}
}

func parseEnd(data []byte) error {
	if len(data) != 1 || data[0] != typeEnd {
		return fmt.Errorf("%w: not an END packet", ErrMalformedPacket)
	}
	return nil
}
