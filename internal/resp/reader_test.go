package resp_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eternalApril/mixedds/internal/resp"
)

func TestReadInt(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr error
	}{
		{
			name:    "Valid positive",
			input:   ":1000\r\n",
			want:    1000,
			wantErr: nil,
		},
		{
			name:    "Valid positive with +",
			input:   ":+1230\r\n",
			want:    1230,
			wantErr: nil,
		},
		{
			name:    "Valid negative",
			input:   ":-15\r\n",
			want:    -15,
			wantErr: nil,
		},
		{
			name:    "Valid zero",
			input:   ":0\r\n",
			want:    0,
			wantErr: nil,
		},
		{
			name:    "Invalid ending",
			input:   ":1000\n",
			want:    0,
			wantErr: resp.ErrInvalidEnding,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := resp.NewDecoder(strings.NewReader(tt.input))

			val, err := r.Read()

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Read() expected error %v, got %v", tt.wantErr, err)
				}
				return
			}

			if err != nil {
				t.Errorf("Read() unexpected error %v", err)
			}

			if val.Type != resp.TypeInteger {
				t.Errorf("Read() type = %v, want %v", val.Type, resp.TypeInteger)
			}

			if val.Integer != tt.want {
				t.Errorf("Read() num = %v, want %v", val.Integer, tt.want)
			}
		})
	}
}

func TestReadCommand(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  resp.Value
	}{
		{
			name:  "Array of bulk strings",
			input: "*2\r\n$3\r\nGET\r\n$3\r\nkey\r\n",
			want:  resp.MakeCommand("GET", "key"),
		},
		{
			name:  "Bulk string with CRLF inside",
			input: "*1\r\n$4\r\na\r\nb\r\n",
			want:  resp.MakeArray([]resp.Value{resp.MakeBulkString("a\r\nb")}),
		},
		{
			name:  "Null bulk string",
			input: "$-1\r\n",
			want:  resp.MakeNilBulkString(),
		},
		{
			name:  "Null array",
			input: "*-1\r\n",
			want:  resp.MakeNilArray(),
		},
		{
			name:  "Simple string",
			input: "+OK\r\n",
			want:  resp.MakeSimpleString("OK"),
		},
		{
			name:  "Error",
			input: "-ERR boom\r\n",
			want:  resp.MakeError("ERR boom"),
		},
		{
			name:  "Inline command",
			input: "SET  k   v\r\n",
			want:  resp.MakeCommand("SET", "k", "v"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			val, err := resp.NewDecoder(strings.NewReader(tt.input)).Read()
			require.NoError(t, err)
			assert.Equal(t, tt.want, val)
		})
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"Negative bulk length", "$-5\r\n", resp.ErrInvalidLength},
		{"Bulk without CRLF", "$3\r\nabcde", resp.ErrInvalidEnding},
		{"Truncated bulk", "$10\r\nabc", io.ErrUnexpectedEOF},
		{"Truncated line", "+OK", io.ErrUnexpectedEOF},
		{"Empty stream", "", io.EOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resp.NewDecoder(strings.NewReader(tt.input)).Read()
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestReadPipeline(t *testing.T) {
	var buf bytes.Buffer
	enc := resp.NewEncoder(&buf)
	require.NoError(t, enc.Write(resp.MakeCommand("SET", "a", "1")))
	require.NoError(t, enc.Write(resp.MakeCommand("GET", "a")))
	require.NoError(t, enc.Flush())

	dec := resp.NewDecoder(&buf)

	first, err := dec.Read()
	require.NoError(t, err)
	assert.Equal(t, resp.MakeCommand("SET", "a", "1"), first)
	assert.Positive(t, dec.Buffered(), "second command must already be buffered")

	second, err := dec.Read()
	require.NoError(t, err)
	assert.Equal(t, resp.MakeCommand("GET", "a"), second)

	_, err = dec.Read()
	assert.ErrorIs(t, err, io.EOF)
}
