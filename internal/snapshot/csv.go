package snapshot

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/JakeFAU/redirect-chains/internal/redirect"
)

// Header is the first row of every chain table.
var Header = []string{"Redirect Chain", "Occurrences"}

// Encode writes entries as a chain table, header first, in the given order.
func Encode(w io.Writer, entries []redirect.Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, entry := range entries {
		if err := cw.Write([]string{entry.Chain.Key(), strconv.Itoa(entry.Count)}); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// EncodeBytes is Encode into a buffer.
func EncodeBytes(entries []redirect.Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses a chain table. An empty input yields no entries. Blank rows
// are skipped; a row whose count is not a positive integer is an error.
func Decode(r io.Reader) ([]redirect.Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	var (
		entries []redirect.Entry
		line    int
	)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line++
		if line == 1 && isHeader(row) {
			continue
		}
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		if len(row) < 2 {
			return nil, fmt.Errorf("line %d: expected 2 columns, got %d", line, len(row))
		}
		count, err := strconv.Atoi(strings.TrimSpace(row[1]))
		if err != nil || count <= 0 {
			return nil, fmt.Errorf("line %d: invalid occurrences %q", line, row[1])
		}
		chain := redirect.ParseChain(strings.TrimSpace(row[0]))
		if len(chain) == 0 {
			return nil, fmt.Errorf("line %d: empty chain", line)
		}
		entries = append(entries, redirect.Entry{Chain: chain, Count: count})
	}
	return entries, nil
}

func isHeader(row []string) bool {
	if len(row) < len(Header) {
		return false
	}
	for i, name := range Header {
		if strings.TrimSpace(row[i]) != name {
			return false
		}
	}
	return true
}
