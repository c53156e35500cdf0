package pipeline

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"bodytype/ml"
)

// ErrSchema is returned when the dataset header lacks a required column.
var ErrSchema = errors.New("dataset schema")

const (
	HeaderAge      = "Age"
	HeaderGender   = "Gender"
	HeaderHeight   = "Height"
	HeaderWeight   = "Weight"
	HeaderActivity = "Activity Level"
	HeaderGoal     = "Goal"
	HeaderBodyType = "Body Type"
)

var requiredHeaders = []string{HeaderAge, HeaderGender, HeaderHeight, HeaderWeight, HeaderActivity, HeaderGoal}

// datasetRow keeps every cell as text so parse failures can be reported with
// the row they came from.
type datasetRow struct {
	Age      string `csv:"Age"`
	Gender   string `csv:"Gender"`
	Height   string `csv:"Height"`
	Weight   string `csv:"Weight"`
	Activity string `csv:"Activity Level"`
	Goal     string `csv:"Goal"`
	BodyType string `csv:"Body Type"`
}

// Dataset is a parsed training file.
type Dataset struct {
	Header    []string
	Records   []ml.RawRecord
	HasLabels bool
}

// LoadFile reads a dataset from disk.
func LoadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// Load parses a CSV dataset. A UTF-8 byte order mark is dropped and header
// names are matched after trimming surrounding whitespace.
func Load(r io.Reader) (*Dataset, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	reader := csv.NewReader(decoded)
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ml.ErrMalformedInput, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrSchema)
	}

	header := make([]string, len(rows[0]))
	for i, name := range rows[0] {
		header[i] = strings.TrimSpace(name)
	}
	rows[0] = header

	if err := ValidateHeader(header); err != nil {
		return nil, err
	}
	if len(rows) == 1 {
		return nil, fmt.Errorf("%w: no data rows", ErrSchema)
	}

	var parsed []datasetRow
	if err := gocsv.UnmarshalCSV(&rowSource{rows: rows}, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ml.ErrMalformedInput, err)
	}

	dataset := &Dataset{
		Header:    header,
		Records:   make([]ml.RawRecord, 0, len(parsed)),
		HasLabels: hasColumn(header, HeaderBodyType),
	}
	for i, row := range parsed {
		record, err := row.toRecord()
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		dataset.Records = append(dataset.Records, record)
	}
	return dataset, nil
}

// ValidateHeader reports every required column missing from header.
func ValidateHeader(header []string) error {
	var missing []string
	for _, name := range requiredHeaders {
		if !hasColumn(header, name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing columns %s", ErrSchema, strings.Join(missing, ", "))
	}
	return nil
}

// WriteRecords writes records back out in the dataset layout.
func WriteRecords(w io.Writer, records []ml.RawRecord) error {
	rows := make([]datasetRow, len(records))
	for i, record := range records {
		rows[i] = datasetRow{
			Age:      formatFloat(record.Age),
			Gender:   record.Gender,
			Height:   formatFloat(record.Height),
			Weight:   formatFloat(record.Weight),
			Activity: record.Activity,
			Goal:     record.Goal,
			BodyType: record.BodyType,
		}
	}
	var buf bytes.Buffer
	if err := gocsv.Marshal(&rows, &buf); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func (row datasetRow) toRecord() (ml.RawRecord, error) {
	age, err := parseNumber(HeaderAge, row.Age)
	if err != nil {
		return ml.RawRecord{}, err
	}
	height, err := parseNumber(HeaderHeight, row.Height)
	if err != nil {
		return ml.RawRecord{}, err
	}
	weight, err := parseNumber(HeaderWeight, row.Weight)
	if err != nil {
		return ml.RawRecord{}, err
	}
	return ml.RawRecord{
		Age:      age,
		Gender:   row.Gender,
		Height:   height,
		Weight:   weight,
		Activity: row.Activity,
		Goal:     row.Goal,
		BodyType: row.BodyType,
	}, nil
}

func parseNumber(column, value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("%w: %s is empty", ml.ErrMalformedInput, column)
	}
	number, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a number", ml.ErrMalformedInput, column, value)
	}
	return number, nil
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func hasColumn(header []string, name string) bool {
	for _, column := range header {
		if column == name {
			return true
		}
	}
	return false
}

// rowSource hands already-read rows to gocsv.
type rowSource struct {
	rows [][]string
	next int
}

func (s *rowSource) Read() ([]string, error) {
	if s.next >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.next]
	s.next++
	return row, nil
}

func (s *rowSource) ReadAll() ([][]string, error) {
	rest := s.rows[s.next:]
	s.next = len(s.rows)
	return rest, nil
}
