// Package genome turns genome FASTA files into fixed-length feature vectors
// and connects genomes to the strains and media of the culture catalogue.
package genome

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrNoSequence is returned when a FASTA input holds no sequence data.
var ErrNoSequence = errors.New("no sequence in FASTA input")

// Record is one FASTA entry. Sequence is upper-cased with line breaks
// removed; its letters are not otherwise interpreted.
type Record struct {
	Header   string
	Sequence string
}

// ReadFASTA reads the first record from r. Later records are ignored.
func ReadFASTA(r io.Reader) (*Record, error) {
	br := bufio.NewReaderSize(r, 1<<16)
	var (
		rec     Record
		seq     strings.Builder
		started bool
	)
	for {
		line, err := br.ReadString('\n')
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, ">") {
			if started && seq.Len() > 0 {
				break
			}
			rec.Header = line[1:]
			started = true
		} else if line != "" {
			seq.WriteString(strings.ToUpper(line))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read FASTA: %w", err)
		}
	}
	if seq.Len() == 0 {
		return nil, ErrNoSequence
	}
	rec.Sequence = seq.String()
	return &rec, nil
}

// ReadFile reads the first record of a FASTA file. Files ending in .gz are
// decompressed.
func ReadFile(path string) (*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}
	rec, err := ReadFASTA(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}
