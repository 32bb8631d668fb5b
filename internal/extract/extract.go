// Package extract flattens a chain table into the list of distinct URLs it
// mentions, for feeding blocklists and threat-intel tooling.
package extract

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/JakeFAU/redirect-chains/internal/redirect"
	"github.com/JakeFAU/redirect-chains/internal/snapshot"
)

// DefaultOutput is where extracted URLs go when no path is given.
const DefaultOutput = "unique_urls.txt"

// Options controls extraction.
type Options struct {
	// Fang rewrites every "." as "[.]" so the output is not clickable.
	Fang bool
	// Ignore drops URLs whose host it blocks. Nil keeps everything.
	Ignore *redirect.DomainBlocklist
}

// URLs returns the distinct URLs across all chains, sorted. Filtering runs
// on the original URL, fanging after.
func URLs(entries []redirect.Entry, opts Options) []string {
	seen := make(map[string]struct{})
	for _, entry := range entries {
		for _, u := range entry.Chain {
			u = strings.TrimSpace(u)
			if u == "" {
				continue
			}
			if opts.Ignore.IsBlocked(redirect.Hostname(u)) {
				continue
			}
			if opts.Fang {
				u = Fang(u)
			}
			seen[u] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Fang replaces every "." with "[.]".
func Fang(u string) string {
	return strings.ReplaceAll(u, ".", "[.]")
}

// Write decodes a chain table from r and writes one URL per line to w. It
// returns the number of URLs written.
func Write(r io.Reader, w io.Writer, opts Options) (int, error) {
	entries, err := snapshot.Decode(r)
	if err != nil {
		return 0, err
	}
	return writeURLs(w, URLs(entries, opts))
}

func writeURLs(w io.Writer, urls []string) (int, error) {
	bw := bufio.NewWriter(w)
	for _, u := range urls {
		if _, err := bw.WriteString(u + "\n"); err != nil {
			return 0, fmt.Errorf("write url: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("flush urls: %w", err)
	}
	return len(urls), nil
}

// File runs Write from inputPath to outputPath. The input is fully decoded
// before outputPath is touched, so a bad table leaves an existing output
// intact.
func File(inputPath, outputPath string, opts Options) (int, error) {
	if outputPath == "" {
		outputPath = DefaultOutput
	}
	entries, err := decodeFile(inputPath)
	if err != nil {
		return 0, err
	}

	out, err := os.Create(outputPath) // #nosec G304 -- operator-supplied path.
	if err != nil {
		return 0, fmt.Errorf("create output: %w", err)
	}
	n, err := writeURLs(out, URLs(entries, opts))
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close output: %w", closeErr)
	}
	return n, err
}

func decodeFile(path string) ([]redirect.Entry, error) {
	in, err := os.Open(path) // #nosec G304 -- operator-supplied path.
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = in.Close() }()
	entries, err := snapshot.Decode(in)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return entries, nil
}

// LoadIgnoreList reads one domain pattern per line. Blank lines and lines
// starting with "#" are skipped. An empty path yields a nil blocklist.
func LoadIgnoreList(path string) (*redirect.DomainBlocklist, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path) // #nosec G304 -- operator-supplied path.
	if err != nil {
		return nil, fmt.Errorf("open ignore list: %w", err)
	}
	defer func() { _ = f.Close() }()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ignore list: %w", err)
	}
	return redirect.NewDomainBlocklist(patterns), nil
}
