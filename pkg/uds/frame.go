package uds

import (
	"encoding/binary"
	"io"

	"main/pkg/exception"
)

// MaxWordSize bounds a single framed word. The verification protocol only
// moves fixed-width request and decision words, so anything larger signals a
// desynchronized peer.
const MaxWordSize = 1 << 10

const frameHeaderSize = 4

// WriteWord writes one length-framed word.
func WriteWord(w io.Writer, word []byte) error {
	if len(word) > MaxWordSize {
		return exception.ErrFrameTooLargeUDS
	}
	var header [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(word)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(word)
	return err
}

// ReadWord reads one length-framed word into buf, growing it when needed.
// It returns the word slice and io.EOF on a cleanly closed stream.
func ReadWord(r io.Reader, buf []byte) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(header[:])
	if size > MaxWordSize {
		return nil, exception.ErrFrameTooLargeUDS
	}
	if cap(buf) < int(size) {
		buf = make([]byte, size)
	} else {
		buf = buf[:size]
	}
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, exception.ErrShortFrameUDS
		}
		return nil, err
	}
	return buf, nil
}
