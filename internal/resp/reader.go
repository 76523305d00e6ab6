package resp

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
)

const (
	maxBulkLength  = 512 * 1024 * 1024
	maxArrayLength = 1024 * 1024
	maxDepth       = 32
)

var (
	ErrInvalidEnding = errors.New("invalid line ending")
	ErrInvalidLength = errors.New("invalid length")
	ErrTooDeep       = errors.New("nesting too deep")
)

// Decoder reads RESP values from an input stream.
// Lines that do not start with a RESP type byte are parsed as inline commands
type Decoder struct {
	rd *bufio.Reader
}

// NewDecoder initializes a Decoder with a buffered reader
func NewDecoder(rd io.Reader) *Decoder {
	return &Decoder{rd: bufio.NewReader(rd)}
}

// Buffered returns the number of bytes that can be read from the current buffer
func (d *Decoder) Buffered() int {
	return d.rd.Buffered()
}

// Read decodes the next value
func (d *Decoder) Read() (Value, error) {
	return d.read(0)
}

func (d *Decoder) read(depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, ErrTooDeep
	}

	_type, err := d.rd.ReadByte()
	if err != nil {
		return Value{}, err
	}

	switch _type {
	case TypeSimpleString, TypeError:
		line, err := d.readLine()
		if err != nil {
			return Value{}, err
		}
		return Value{Type: _type, String: line}, nil

	case TypeInteger:
		num, err := d.readInteger()
		if err != nil {
			return Value{}, err
		}
		return Value{Type: TypeInteger, Integer: num}, nil

	case TypeBulkString:
		return d.readBulkString()

	case TypeArray:
		return d.readArray(depth)
	}

	if err := d.rd.UnreadByte(); err != nil {
		return Value{}, err
	}
	return d.readInline()
}

// readLine reads up to CRLF and returns the line without it
func (d *Decoder) readLine() ([]byte, error) {
	line, err := d.rd.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, ErrInvalidEnding
	}

	return line[:len(line)-2], nil
}

func (d *Decoder) readInteger() (int64, error) {
	line, err := d.readLine()
	if err != nil {
		return 0, err
	}

	// Command with integer cant be empty
	if len(line) == 0 {
		return 0, ErrInvalidEnding
	}

	return strconv.ParseInt(string(line), 10, 64)
}

func (d *Decoder) readBulkString() (Value, error) {
	n, err := d.readInteger()
	if err != nil {
		return Value{}, err
	}

	if n == -1 {
		return MakeNilBulkString(), nil
	}
	if n < 0 || n > maxBulkLength {
		return Value{}, ErrInvalidLength
	}

	buf := make([]byte, n+2)
	if _, err := io.ReadFull(d.rd, buf); err != nil {
		return Value{}, err
	}
	if buf[n] != '\r' || buf[n+1] != '\n' {
		return Value{}, ErrInvalidEnding
	}

	return Value{Type: TypeBulkString, String: buf[:n]}, nil
}

func (d *Decoder) readArray(depth int) (Value, error) {
	n, err := d.readInteger()
	if err != nil {
		return Value{}, err
	}

	if n == -1 {
		return MakeNilArray(), nil
	}
	if n < 0 || n > maxArrayLength {
		return Value{}, ErrInvalidLength
	}

	vals := make([]Value, n)
	for i := range vals {
		if vals[i], err = d.read(depth + 1); err != nil {
			return Value{}, err
		}
	}

	return MakeArray(vals), nil
}

// readInline parses a space separated command line, as typed into telnet
func (d *Decoder) readInline() (Value, error) {
	line, err := d.rd.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return Value{}, io.ErrUnexpectedEOF
		}
		return Value{}, err
	}

	fields := bytes.Fields(line)
	vals := make([]Value, len(fields))
	for i, f := range fields {
		vals[i] = MakeBulkBytes(f)
	}

	return MakeArray(vals), nil
}
