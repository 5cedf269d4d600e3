// Package export renders the record collection as JSON or CSV. It is a
// read-only projection and never touches sync state.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/tphakala/evalsync/internal/errors"
	"github.com/tphakala/evalsync/internal/evaluation"
)

const component = "export"

// Format selects the export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts "json" or "csv" in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV:
		return f, nil
	}
	return "", errors.Newf("unknown export format %q, want json or csv", s).
		Component(component).
		Category(errors.CategoryValidation).
		Build()
}

// ContentType is the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json; charset=utf-8"
}

// Filename is the default download name, e.g. evaluations_20240315_093000.csv.
func (f Format) Filename(now time.Time) string {
	return "evaluations_" + now.Format("20060102_150405") + "." + string(f)
}

// Header is the CSV column order.
var Header = []string{
	"ID", "Timestamp", "Operator", "Location", "Animal ID",
	"Classification", "Cattle Score", "Buffalo Score", "Confidence",
	"Body Length (cm)", "Height at Withers (cm)", "Chest Width (cm)",
	"Rump Angle (deg)", "Pelvic Width (cm)", "Leg Length Ratio",
	"Status", "Notes",
}

// Encode renders records in format.
func Encode(format Format, records []*evaluation.Record) ([]byte, error) {
	switch format {
	case FormatJSON:
		return JSON(records)
	case FormatCSV:
		return CSV(records)
	}
	_, err := ParseFormat(string(format))
	return nil, err
}

// JSON renders the full records as a two-space indented array. An empty
// collection renders as [].
func JSON(records []*evaluation.Record) ([]byte, error) {
	if records == nil {
		records = []*evaluation.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, errors.New(err).
			Component(component).
			Category(errors.CategoryValidation).
			Context("format", string(FormatJSON)).
			Build()
	}
	return data, nil
}

// CSV renders one row per record under Header. An empty collection renders
// as empty output and there is no trailing newline.
func CSV(records []*evaluation.Record) ([]byte, error) {
	if len(records) == 0 {
		return []byte{}, nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header); err != nil {
		return nil, csvError(err)
	}
	for _, r := range records {
		if err := w.Write(row(r)); err != nil {
			return nil, csvError(err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, csvError(err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func row(r *evaluation.Record) []string {
	m := r.Measurements
	return []string{
		r.ID,
		evaluation.FormatTimestamp(r.Timestamp),
		freeText(r.OperatorName),
		freeText(r.Location),
		identifierText(r.AnimalID),
		string(r.ClassificationLabel),
		fixed(r.ClassificationScore.Cattle, 2),
		fixed(r.ClassificationScore.Buffalo, 2),
		fixed(r.ConfidenceBand, 2),
		fixed(m.BodyLength, 1),
		fixed(m.HeightAtWithers, 1),
		fixed(m.ChestWidth, 1),
		fixed(m.RumpAngle, 1),
		fixed(m.PelvicWidth, 1),
		fixed(m.LegLengthRatio, 2),
		r.Status.String(),
		freeText(r.Notes),
	}
}

func fixed(v float64, places int) string {
	return strconv.FormatFloat(v, 'f', places, 64)
}

var freeTextReplacer = strings.NewReplacer(",", ";", "\r\n", " ", "\n", " ", "\r", " ")

// freeText keeps operator-entered text from breaking the row layout and
// neutralizes spreadsheet formulas.
func freeText(s string) string {
	s = freeTextReplacer.Replace(s)
	if s != "" && strings.ContainsRune("=+-@", rune(s[0])) {
		s = "'" + s
	}
	return s
}

var plainNumber = regexp.MustCompile(`^[+-]?[0-9]+(\.[0-9]+)?$`)

// identifierText is freeText for ids, where a plain signed number such as
// "-12" is a legitimate value and stays unquoted.
func identifierText(s string) string {
	if plainNumber.MatchString(s) {
		return s
	}
	return freeText(s)
}

func csvError(err error) error {
	return errors.New(err).
		Component(component).
		Category(errors.CategoryValidation).
		Context("format", string(FormatCSV)).
		Build()
}

// Write renders records in format to path on fs, creating the parent
// directory when needed.
func Write(ctx context.Context, fs afero.Fs, path string, format Format, records []*evaluation.Record) error {
	data, err := Encode(format, records)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.New(err).
			Component(component).
			Category(errors.CategoryCancellation).
			Build()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fileError(err, path)
		}
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fileError(err, path)
	}
	return nil
}

func fileError(err error, path string) error {
	return errors.New(err).
		Component(component).
		Category(errors.CategoryFileIO).
		Context("path", path).
		Build()
}
