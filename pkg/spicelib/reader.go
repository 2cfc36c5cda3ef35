// Package spicelib reads device models out of SPICE library files.
package spicelib

import (
	"bufio"
	"io"
	"strings"
)

const maxLineSize = 1 << 20

// DirectiveReader yields the dot-directives of a SPICE file. Continuation
// lines ("+ ...") are joined to the line they continue, "*" lines and blank
// lines are skipped and ";" starts a comment running to the end of the line.
// Element lines are read past.
type DirectiveReader struct {
	scanner *bufio.Scanner
	pending string
}

// NewDirectiveReader reads directives from r.
func NewDirectiveReader(r io.Reader) *DirectiveReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &DirectiveReader{scanner: s}
}

// Next returns the next directive, or io.EOF when there are no more.
func (d *DirectiveReader) Next() (string, error) {
	for d.scanner.Scan() {
		line := clean(d.scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "+") {
			if d.pending != "" {
				d.pending += " " + strings.TrimSpace(line[1:])
			}
			continue
		}

		prev := d.pending
		d.pending = ""
		if strings.HasPrefix(line, ".") {
			d.pending = line
		}
		if prev != "" {
			return prev, nil
		}
	}

	if err := d.scanner.Err(); err != nil {
		return "", err
	}
	if d.pending != "" {
		last := d.pending
		d.pending = ""
		return last, nil
	}
	return "", io.EOF
}

// All reads every remaining directive.
func (d *DirectiveReader) All() ([]string, error) {
	var out []string
	for {
		directive, err := d.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, directive)
	}
}

func clean(line string) string {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "*") {
		return ""
	}
	return line
}
