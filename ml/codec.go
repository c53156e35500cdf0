package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

const ColumnBodyType = "body_type"

// CategoryMapping assigns each distinct value observed at fit time the code
// equal to its position in Values. Values are sorted lexicographically (byte
// order) after canonicalisation, so the same observations always produce the
// same codes regardless of row order.
type CategoryMapping struct {
	Column string   `json:"column"`
	Values []string `json:"values"`

	index map[string]int
}

func FitMapping(column string, observed []string) (*CategoryMapping, error) {
	seen := make(map[string]struct{}, len(observed))
	for _, value := range observed {
		canonical := CanonicalCategory(value)
		if canonical == "" {
			return nil, fmt.Errorf("%w: empty %s value", ErrMalformedInput, column)
		}
		seen[canonical] = struct{}{}
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("column %s has no observed values", column)
	}
	values := make([]string, 0, len(seen))
	for value := range seen {
		values = append(values, value)
	}
	sort.Strings(values)

	mapping := &CategoryMapping{Column: column, Values: values}
	if err := mapping.buildIndex(); err != nil {
		return nil, err
	}
	return mapping, nil
}

func (m *CategoryMapping) Encode(value string) (int, error) {
	code, ok := m.index[CanonicalCategory(value)]
	if !ok {
		return 0, fmt.Errorf("%w: %q is not a known %s value", ErrUnknownCategory, value, m.Column)
	}
	return code, nil
}

func (m *CategoryMapping) Decode(code int) (string, error) {
	if code < 0 || code >= len(m.Values) {
		return "", fmt.Errorf("%w: code %d is out of range for %s", ErrUnknownCategory, code, m.Column)
	}
	return m.Values[code], nil
}

func (m *CategoryMapping) Len() int {
	return len(m.Values)
}

func (m *CategoryMapping) UnmarshalJSON(data []byte) error {
	type plain CategoryMapping
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*m = CategoryMapping(decoded)
	return m.buildIndex()
}

func (m *CategoryMapping) buildIndex() error {
	if m.Column == "" {
		return errors.New("category mapping has no column")
	}
	if len(m.Values) == 0 {
		return fmt.Errorf("category mapping %s is empty", m.Column)
	}
	index := make(map[string]int, len(m.Values))
	for code, value := range m.Values {
		if value == "" || CanonicalCategory(value) != value {
			return fmt.Errorf("category mapping %s has non-canonical value %q", m.Column, value)
		}
		if _, dup := index[value]; dup {
			return fmt.Errorf("category mapping %s has duplicate value %q", m.Column, value)
		}
		index[value] = code
	}
	m.index = index
	return nil
}

// Codec holds the fitted mapping of every categorical feature column.
type Codec struct {
	Mappings []*CategoryMapping `json:"mappings"`

	byColumn map[string]*CategoryMapping
}

func FitCodec(columns []string, records []RawRecord) (*Codec, error) {
	if len(records) == 0 {
		return nil, errors.New("cannot fit codec on empty records")
	}
	codec := &Codec{}
	for _, column := range columns {
		observed := make([]string, len(records))
		for i, record := range records {
			value, ok := CategoryValue(record, column)
			if !ok {
				return nil, fmt.Errorf("%s is not a categorical column", column)
			}
			observed[i] = value
		}
		mapping, err := FitMapping(column, observed)
		if err != nil {
			return nil, err
		}
		codec.Mappings = append(codec.Mappings, mapping)
	}
	if err := codec.buildIndex(); err != nil {
		return nil, err
	}
	return codec, nil
}

func (c *Codec) Encode(column, value string) (int, error) {
	mapping, err := c.mapping(column)
	if err != nil {
		return 0, err
	}
	return mapping.Encode(value)
}

func (c *Codec) Decode(column string, code int) (string, error) {
	mapping, err := c.mapping(column)
	if err != nil {
		return "", err
	}
	return mapping.Decode(code)
}

// Values returns the accepted values of a column in code order.
func (c *Codec) Values(column string) []string {
	mapping, err := c.mapping(column)
	if err != nil {
		return nil
	}
	return append([]string(nil), mapping.Values...)
}

func (c *Codec) Columns() []string {
	columns := make([]string, len(c.Mappings))
	for i, mapping := range c.Mappings {
		columns[i] = mapping.Column
	}
	return columns
}

func (c *Codec) UnmarshalJSON(data []byte) error {
	type plain Codec
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*c = Codec(decoded)
	return c.buildIndex()
}

func (c *Codec) mapping(column string) (*CategoryMapping, error) {
	mapping, ok := c.byColumn[column]
	if !ok {
		return nil, fmt.Errorf("%w: no mapping for column %s", ErrUnknownCategory, column)
	}
	return mapping, nil
}

func (c *Codec) buildIndex() error {
	byColumn := make(map[string]*CategoryMapping, len(c.Mappings))
	for _, mapping := range c.Mappings {
		if mapping == nil {
			return errors.New("codec has a nil mapping")
		}
		if _, dup := byColumn[mapping.Column]; dup {
			return fmt.Errorf("codec has duplicate column %s", mapping.Column)
		}
		byColumn[mapping.Column] = mapping
	}
	c.byColumn = byColumn
	return nil
}

// LabelMapping is the only mapping applied to the target column.
type LabelMapping struct {
	mapping *CategoryMapping
}

func FitLabels(labels []string) (*LabelMapping, error) {
	mapping, err := FitMapping(ColumnBodyType, labels)
	if err != nil {
		return nil, err
	}
	return &LabelMapping{mapping: mapping}, nil
}

func (l *LabelMapping) Encode(label string) (int, error) {
	return l.mapping.Encode(label)
}

func (l *LabelMapping) Decode(class int) (string, error) {
	return l.mapping.Decode(class)
}

func (l *LabelMapping) Len() int {
	return l.mapping.Len()
}

func (l *LabelMapping) Labels() []string {
	return append([]string(nil), l.mapping.Values...)
}

func (l *LabelMapping) MarshalJSON() ([]byte, error) {
	if l.mapping == nil {
		return nil, errors.New("label mapping not fitted")
	}
	return json.Marshal(l.mapping)
}

func (l *LabelMapping) UnmarshalJSON(data []byte) error {
	var mapping CategoryMapping
	if err := json.Unmarshal(data, &mapping); err != nil {
		return err
	}
	if mapping.Column != ColumnBodyType {
		return fmt.Errorf("label mapping has column %s, want %s", mapping.Column, ColumnBodyType)
	}
	l.mapping = &mapping
	return nil
}
