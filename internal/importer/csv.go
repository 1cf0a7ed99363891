package importer

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/datastark/crime-analysis-toolbox/internal/model"
)

// ReadCSV parses incident rows from a CSV stream. The first record is
// treated as the header. Non-UTF-8 input is transcoded according to
// Options.Charset.
func ReadCSV(r io.Reader, opts Options) ([]model.Incident, error) {
	decoded, err := decodeCharset(r, opts.Charset)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(decoded)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, eris.New("importer: empty csv input")
	}
	if err != nil {
		return nil, eris.Wrap(err, "importer: read csv header")
	}

	var rows [][]string
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "importer: read csv row")
		}
		rows = append(rows, row)
	}

	return rowsToIncidents(header, rows, opts)
}

// decodeCharset wraps r with a decoder for the named encoding. UTF-8 and
// the empty name pass through untouched.
func decodeCharset(r io.Reader, name string) (io.Reader, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" || name == "utf-8" || name == "utf8" {
		return r, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: unknown charset %q", name)
	}
	return enc.NewDecoder().Reader(r), nil
}
