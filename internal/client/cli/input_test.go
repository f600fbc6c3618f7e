package cli

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func rdr(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

func TestGetSimpleText(t *testing.T) {
	var out bytes.Buffer
	got, err := GetSimpleText(rdr("hello world\n"), "Name?", &out)
	require.NoError(t, err)
	require.Equal(t, "hello world", got)
	require.Contains(t, out.String(), "Name?")
}

func TestGetSimpleTextEOF(t *testing.T) {
	var out bytes.Buffer
	got, err := GetSimpleText(rdr("lastline"), "Name?", &out)
	require.NoError(t, err)
	require.Equal(t, "lastline", got)
}

func TestGetPassword_Error(t *testing.T) {
	old := readPassword
	defer func() { readPassword = old }()
	readPassword = func(int) ([]byte, error) {
		return nil, errors.New("boom")
	}
	var out bytes.Buffer
	_, err := GetPassword(&out)
	require.Error(t, err)
}

func TestGetPassword(t *testing.T) {
	old := readPassword
	defer func() { readPassword = old }()
	readPassword = func(int) ([]byte, error) {
		return []byte("s3cret-pw"), nil
	}
	var out bytes.Buffer
	got, err := GetPassword(&out)
	require.NoError(t, err)
	require.Equal(t, "s3cret-pw", got)
}

func TestGetAttributes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected map[string]any
	}{
		{
			name:     "Unix newlines, stop on empty line",
			input:    "cuisine=thai\ncity=Lisbon\n\n",
			expected: map[string]any{"cuisine": "thai", "city": "Lisbon"},
		},
		{
			name:     "Windows CRLF, stop on empty line",
			input:    "cuisine=thai\r\ncity=Lisbon\r\n\r\n",
			expected: map[string]any{"cuisine": "thai", "city": "Lisbon"},
		},
		{
			name:     "Immediate blank line yields nil",
			input:    "\n",
			expected: nil,
		},
		{
			name:     "EOF without trailing blank line",
			input:    "cuisine=thai",
			expected: map[string]any{"cuisine": "thai"},
		},
		{
			name:     "Names and values are trimmed",
			input:    " cuisine = thai \n\n",
			expected: map[string]any{"cuisine": "thai"},
		},
		{
			name:     "Malformed lines are skipped",
			input:    "not-an-attribute\ncity=Lisbon\n\n",
			expected: map[string]any{"city": "Lisbon"},
		},
		{
			name:     "Value may contain equals signs",
			input:    "note=a=b\n\n",
			expected: map[string]any{"note": "a=b"},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			got, err := GetAttributes(rdr(tc.input), &out)
			require.NoError(t, err)
			require.Equal(t, tc.expected, got)
		})
	}
}
