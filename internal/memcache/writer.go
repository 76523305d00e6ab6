package memcache

import (
	"bufio"
	"io"
	"strconv"
)

// Encoder handles the serialization of responses into an output stream.
// Output is buffered until Flush
type Encoder struct {
	writer *bufio.Writer
}

// NewEncoder initializes an Encoder with a buffered writer
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{writer: bufio.NewWriter(w)}
}

// Write serializes a response into the buffer
func (e *Encoder) Write(r Response) error {
	switch r.Kind {
	case KindValues:
		for _, it := range r.Items {
			if err := e.writeItem(it); err != nil {
				return err
			}
		}
		return e.writeLine("END")

	case KindStatus:
		return e.writeLine(r.Status)

	case KindNumber:
		b := e.writer.AvailableBuffer()
		b = strconv.AppendUint(b, r.Number, 10)
		b = append(b, '\r', '\n')
		_, err := e.writer.Write(b)
		return err

	case KindClientError:
		return e.writeLine("CLIENT_ERROR " + r.Message)

	case KindServerError:
		return e.writeLine("SERVER_ERROR " + r.Message)
	}

	return e.writeLine("ERROR")
}

// Flush sends all buffered data to the underlying writer
func (e *Encoder) Flush() error {
	return e.writer.Flush()
}

// writeItem writes "VALUE <key> <flags> <bytes>\r\n<data>\r\n"
func (e *Encoder) writeItem(it Item) error {
	b := e.writer.AvailableBuffer()
	b = append(b, "VALUE "...)
	b = append(b, it.Key...)
	b = append(b, ' ')
	b = strconv.AppendUint(b, uint64(it.Flags), 10)
	b = append(b, ' ')
	b = strconv.AppendInt(b, int64(len(it.Value)), 10)
	b = append(b, '\r', '\n')
	if _, err := e.writer.Write(b); err != nil {
		return err
	}
	if _, err := e.writer.Write(it.Value); err != nil {
		return err
	}
	_, err := e.writer.WriteString("\r\n")
	return err
}

func (e *Encoder) writeLine(s string) error {
	if _, err := e.writer.WriteString(s); err != nil {
		return err
	}
	_, err := e.writer.WriteString("\r\n")
	return err
}
