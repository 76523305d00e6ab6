package memcache

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"math"
	"strconv"
)

const (
	MaxKeyLength   = 250
	MaxValueLength = 1024 * 1024
	maxLineLength  = 64 * 1024
)

var (
	// ErrUnknownCommand is answered with ERROR; the connection stays usable
	ErrUnknownCommand = errors.New("unknown command")
	ErrLineTooLong    = errors.New("line too long")
)

// ClientError is a malformed request. It is answered with CLIENT_ERROR (or SERVER_ERROR
// for oversized values) and the connection stays usable
type ClientError struct {
	Msg    string
	Server bool
}

func (e *ClientError) Error() string {
	return e.Msg
}

// Response converts the error into the reply the client expects
func (e *ClientError) Response() Response {
	if e.Server {
		return MakeServerError(e.Msg)
	}
	return MakeClientError(e.Msg)
}

func badFormat() error {
	return &ClientError{Msg: "bad command line format"}
}

// Decoder reads memcache text protocol requests
type Decoder struct {
	rd *bufio.Reader
}

// NewDecoder initializes a Decoder with a buffered reader
func NewDecoder(rd io.Reader) *Decoder {
	return &Decoder{rd: bufio.NewReaderSize(rd, maxLineLength)}
}

// Buffered returns the number of bytes that can be read from the current buffer
func (d *Decoder) Buffered() int {
	return d.rd.Buffered()
}

// Read decodes the next request. Errors of type *ClientError and ErrUnknownCommand
// leave the stream positioned at the next command
func (d *Decoder) Read() (Request, error) {
	line, err := d.readLine()
	if err != nil {
		return Request{}, err
	}

	tokens := bytes.Fields(line)
	if len(tokens) == 0 {
		return Request{}, ErrUnknownCommand
	}

	req := Request{Command: string(bytes.ToLower(tokens[0]))}
	args := tokens[1:]

	switch req.Command {
	case "get", "gets":
		if len(args) == 0 {
			return Request{}, ErrUnknownCommand
		}
		for _, k := range args {
			if len(k) > MaxKeyLength {
				return Request{}, badFormat()
			}
		}
		req.Keys = args
		return req, nil

	case "set", "add", "replace":
		return d.readStorage(req, args)

	case "delete":
		// a legacy trailing "0" time argument is tolerated
		if len(args) > 1 && string(args[1]) == "0" {
			args = append(args[:1:1], args[2:]...)
		}
		req, _, err := withKey(req, args, 0)
		return req, err

	case "incr", "decr":
		req, rest, err := withKey(req, args, 1)
		if err != nil {
			return Request{}, err
		}
		if req.Delta, err = strconv.ParseUint(string(rest[0]), 10, 64); err != nil {
			return Request{}, &ClientError{Msg: "invalid numeric delta argument"}
		}
		return req, nil

	case "touch":
		req, rest, err := withKey(req, args, 1)
		if err != nil {
			return Request{}, err
		}
		if req.Exptime, err = strconv.ParseInt(string(rest[0]), 10, 64); err != nil {
			return Request{}, &ClientError{Msg: "invalid exptime argument"}
		}
		return req, nil

	case "flush_all":
		if len(args) > 0 && string(args[len(args)-1]) == "noreply" {
			req.NoReply = true
			args = args[:len(args)-1]
		}
		if len(args) > 1 {
			return Request{}, badFormat()
		}
		if len(args) == 1 {
			if _, err := strconv.ParseInt(string(args[0]), 10, 64); err != nil {
				return Request{}, badFormat()
			}
		}
		return req, nil

	case "version", "quit":
		if len(args) != 0 {
			return Request{}, ErrUnknownCommand
		}
		return req, nil
	}

	return Request{}, ErrUnknownCommand
}

// readStorage parses "<cmd> <key> <flags> <exptime> <bytes> [noreply]" and the data block
func (d *Decoder) readStorage(req Request, args [][]byte) (Request, error) {
	req, rest, err := withKey(req, args, 3)
	if err != nil {
		return Request{}, err
	}

	flags, err := strconv.ParseUint(string(rest[0]), 10, 32)
	if err != nil {
		return Request{}, badFormat()
	}
	exptime, err := strconv.ParseInt(string(rest[1]), 10, 64)
	if err != nil {
		return Request{}, badFormat()
	}
	size, err := strconv.Atoi(string(rest[2]))
	if err != nil || size < 0 || size > math.MaxInt32 {
		return Request{}, badFormat()
	}

	if size > MaxValueLength {
		// swallow the data block so the stream stays in sync
		if _, err := d.rd.Discard(size + 2); err != nil {
			return Request{}, err
		}
		return Request{}, &ClientError{Msg: "object too large for cache", Server: true}
	}

	buf := make([]byte, size+2)
	if _, err := io.ReadFull(d.rd, buf); err != nil {
		return Request{}, err
	}
	if buf[size] != '\r' || buf[size+1] != '\n' {
		return Request{}, &ClientError{Msg: "bad data chunk"}
	}

	req.Flags = uint32(flags)
	req.Exptime = exptime
	req.Value = buf[:size]
	return req, nil
}

// withKey consumes the key and an optional trailing noreply, expecting want arguments
// after the key. It returns the remaining arguments
func withKey(req Request, args [][]byte, want int) (Request, [][]byte, error) {
	if len(args) == want+2 && string(args[len(args)-1]) == "noreply" {
		req.NoReply = true
		args = args[:len(args)-1]
	}
	if len(args) != want+1 {
		return Request{}, nil, badFormat()
	}
	if len(args[0]) > MaxKeyLength {
		return Request{}, nil, badFormat()
	}

	req.Keys = args[:1]
	return req, args[1:], nil
}

// readLine reads up to LF, stripping an optional CR
func (d *Decoder) readLine() ([]byte, error) {
	line, err := d.rd.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return nil, ErrLineTooLong
	}
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	line = bytes.TrimSuffix(line[:len(line)-1], []byte{'\r'})

	// ReadSlice memory is reused by the next read
	out := make([]byte, len(line))
	copy(out, line)
	return out, nil
}
