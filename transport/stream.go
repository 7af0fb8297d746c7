package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/CrimsonAS/aliasbridge/wire"
)

// streamFramer frames messages as "<length> <data>\n" on a byte stream.
type streamFramer struct {
	in  io.ReadCloser
	out io.WriteCloser
	rd  *bufio.Reader
}

// NewStreamFramer returns a Framer reading from in and writing to out.
func NewStreamFramer(in io.ReadCloser, out io.WriteCloser) Framer {
	return &streamFramer{in: in, out: out, rd: bufio.NewReader(in)}
}

func (f *streamFramer) ReadFrame() ([]byte, error) {
	sizeStr, err := f.rd.ReadString(' ')
	if err != nil {
		return nil, err
	} else if len(sizeStr) < 2 {
		return nil, errors.New("invalid size")
	}

	byteCnt, _ := strconv.ParseInt(sizeStr[:len(sizeStr)-1], 10, 32)
	if byteCnt < 1 {
		return nil, errors.New("size too short")
	}

	blob := make([]byte, byteCnt)
	if _, err := io.ReadFull(f.rd, blob); err != nil {
		return nil, err
	}

	// Read the final newline
	if nl, err := f.rd.ReadByte(); err != nil {
		return nil, err
	} else if nl != '\n' {
		return nil, fmt.Errorf("expected terminating newline, read %c", nl)
	}
	return blob, nil
}

func (f *streamFramer) WriteFrame(data []byte) error {
	frame := make([]byte, 0, len(data)+12)
	frame = strconv.AppendInt(frame, int64(len(data)), 10)
	frame = append(frame, ' ')
	frame = append(frame, data...)
	frame = append(frame, '\n')
	_, err := f.out.Write(frame)
	return err
}

func (f *streamFramer) Close() error {
	err := f.in.Close()
	if oerr := f.out.Close(); err == nil {
		err = oerr
	}
	return err
}

// NewStreamConn creates a connection from an open stream.
func NewStreamConn(data io.ReadWriteCloser, codec wire.Codec) *Conn {
	return NewStreamConnSplit(data, data, codec)
}

// NewStreamConnSplit is equivalent to NewStreamConn, except that it uses
// separate streams for reading and writing. This is useful for certain kinds
// of pipe or when using stdin and stdout.
func NewStreamConnSplit(in io.ReadCloser, out io.WriteCloser, codec wire.Codec) *Conn {
	return NewConn(NewStreamFramer(in, out), codec)
}

// NewStdConn creates a connection to a parent process over stdin and
// stdout. os.Stdin and os.Stdout are redirected to nil and stderr, so that
// stray output cannot corrupt the stream.
func NewStdConn(codec wire.Codec) *Conn {
	if os.Stdin == nil {
		panic("Cannot create multiple stdin/stdout connections")
	}

	in, out := os.Stdin, os.Stdout
	os.Stdin, os.Stdout = nil, os.Stderr

	return NewStreamConnSplit(in, out, codec)
}
