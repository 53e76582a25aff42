package ir

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Value is an answer payload.
//
// This is a sealed interface: only types in this package implement it.
// String returns the text written to instance documents; ParseValue is its
// inverse for a given QuestionKind.
type Value interface {
	String() string
	formValue() // sealed marker
}

// Text answers text questions.
type Text string

// Integer answers integer questions.
type Integer int64

// Decimal answers decimal questions. It holds the decimal literal so values
// round-trip through instance files without float formatting drift.
type Decimal string

// Date is a calendar date formatted as 2006-01-02.
type Date string

// TimeOfDay is a wall-clock time formatted as 15:04:05.
type TimeOfDay string

// DateTime is an RFC 3339 timestamp.
type DateTime string

// GeoPoint is a location fix.
type GeoPoint struct {
	Lat      float64
	Lon      float64
	Alt      float64
	Accuracy float64
}

// Selection answers single-choice questions with the chosen value.
type Selection string

// MultiSelection answers multiple-choice questions with chosen values in
// selection order.
type MultiSelection []string

// FileRef names a file stored in the instance directory.
type FileRef string

func (Text) formValue()           {}
func (Integer) formValue()        {}
func (Decimal) formValue()        {}
func (Date) formValue()           {}
func (TimeOfDay) formValue()      {}
func (DateTime) formValue()       {}
func (GeoPoint) formValue()       {}
func (Selection) formValue()      {}
func (MultiSelection) formValue() {}
func (FileRef) formValue()        {}

func (v Text) String() string      { return string(v) }
func (v Integer) String() string   { return strconv.FormatInt(int64(v), 10) }
func (v Decimal) String() string   { return string(v) }
func (v Date) String() string      { return string(v) }
func (v TimeOfDay) String() string { return string(v) }
func (v DateTime) String() string  { return string(v) }
func (v Selection) String() string { return string(v) }
func (v FileRef) String() string   { return string(v) }

func (v GeoPoint) String() string {
	return strings.Join([]string{
		formatFloat(v.Lat), formatFloat(v.Lon), formatFloat(v.Alt), formatFloat(v.Accuracy),
	}, " ")
}

func (v MultiSelection) String() string { return strings.Join(v, " ") }

// Float returns the decimal as a float64 for expression evaluation.
func (v Decimal) Float() float64 {
	f, _ := strconv.ParseFloat(string(v), 64)
	return f
}

// NewDecimal formats f as a Decimal with the shortest exact representation.
func NewDecimal(f float64) Decimal {
	return Decimal(formatFloat(f))
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// IsEmpty reports whether v carries no answer.
func IsEmpty(v Value) bool {
	switch val := v.(type) {
	case nil:
		return true
	case Text:
		return val == ""
	case MultiSelection:
		return len(val) == 0
	default:
		return v.String() == ""
	}
}

// Normalize maps empty payloads to nil.
func Normalize(v Value) Value {
	if IsEmpty(v) {
		return nil
	}
	return v
}

// ValuesEqual compares two payloads structurally. Empty payloads are equal.
func ValuesEqual(a, b Value) bool {
	a, b = Normalize(a), Normalize(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	am, aMulti := a.(MultiSelection)
	bm, bMulti := b.(MultiSelection)
	if aMulti || bMulti {
		return aMulti && bMulti && slices.Equal(am, bm)
	}
	return a == b
}

// ParseValue parses instance text into the payload for kind. Empty text
// yields a nil Value.
func ParseValue(kind QuestionKind, text string) (Value, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	switch kind {
	case KindText, KindNote:
		return Text(text), nil
	case KindInteger:
		n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("integer %q: %w", text, err)
		}
		return Integer(n), nil
	case KindDecimal:
		s := strings.TrimSpace(text)
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return nil, fmt.Errorf("decimal %q: %w", text, err)
		}
		return Decimal(s), nil
	case KindDate:
		s := strings.TrimSpace(text)
		if _, err := time.Parse(time.DateOnly, s); err != nil {
			return nil, fmt.Errorf("date %q: %w", text, err)
		}
		return Date(s), nil
	case KindTime:
		s := strings.TrimSpace(text)
		if _, err := time.Parse(time.TimeOnly, s); err != nil {
			return nil, fmt.Errorf("time %q: %w", text, err)
		}
		return TimeOfDay(s), nil
	case KindDateTime:
		s := strings.TrimSpace(text)
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return nil, fmt.Errorf("datetime %q: %w", text, err)
		}
		return DateTime(s), nil
	case KindGeoPoint:
		return parseGeoPoint(text)
	case KindSelectOne:
		return Selection(strings.TrimSpace(text)), nil
	case KindSelectMulti:
		return MultiSelection(strings.Fields(text)), nil
	case KindFile:
		return FileRef(strings.TrimSpace(text)), nil
	default:
		panic(fmt.Sprintf("ParseValue: unhandled question kind %d", int(kind)))
	}
}

func parseGeoPoint(text string) (Value, error) {
	fields := strings.Fields(text)
	if len(fields) < 2 || len(fields) > 4 {
		return nil, fmt.Errorf("geopoint %q: want 2 to 4 numbers", text)
	}
	nums := make([]float64, 4)
	for i, f := range fields {
		n, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("geopoint %q: %w", text, err)
		}
		nums[i] = n
	}
	if nums[0] < -90 || nums[0] > 90 || nums[1] < -180 || nums[1] > 180 {
		return nil, fmt.Errorf("geopoint %q: coordinates out of range", text)
	}
	return GeoPoint{Lat: nums[0], Lon: nums[1], Alt: nums[2], Accuracy: nums[3]}, nil
}

// CheckKind reports whether v is an acceptable payload for kind.
func CheckKind(kind QuestionKind, v Value) error {
	if v == nil {
		return nil
	}
	ok := false
	switch kind {
	case KindText, KindNote:
		_, ok = v.(Text)
	case KindInteger:
		_, ok = v.(Integer)
	case KindDecimal:
		_, ok = v.(Decimal)
	case KindDate:
		_, ok = v.(Date)
	case KindTime:
		_, ok = v.(TimeOfDay)
	case KindDateTime:
		_, ok = v.(DateTime)
	case KindGeoPoint:
		_, ok = v.(GeoPoint)
	case KindSelectOne:
		_, ok = v.(Selection)
	case KindSelectMulti:
		_, ok = v.(MultiSelection)
	case KindFile:
		_, ok = v.(FileRef)
	default:
		panic(fmt.Sprintf("CheckKind: unhandled question kind %d", int(kind)))
	}
	if !ok {
		return fmt.Errorf("%T is not a %s answer", v, kind)
	}
	return nil
}
