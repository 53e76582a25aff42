package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValueRoundTrip(t *testing.T) {
	tests := []struct {
		kind QuestionKind
		text string
		want Value
	}{
		{KindText, "hello world", Text("hello world")},
		{KindInteger, "42", Integer(42)},
		{KindInteger, "-7", Integer(-7)},
		{KindDecimal, "3.25", Decimal("3.25")},
		{KindDate, "2024-02-29", Date("2024-02-29")},
		{KindTime, "13:45:00", TimeOfDay("13:45:00")},
		{KindDateTime, "2024-02-29T13:45:00Z", DateTime("2024-02-29T13:45:00Z")},
		{KindGeoPoint, "12.5 -3.25 100 5", GeoPoint{Lat: 12.5, Lon: -3.25, Alt: 100, Accuracy: 5}},
		{KindSelectOne, "yes", Selection("yes")},
		{KindSelectMulti, "a c", MultiSelection{"a", "c"}},
		{KindFile, "photo.jpg", FileRef("photo.jpg")},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			v, err := ParseValue(tt.kind, tt.text)
			require.NoError(t, err)
			assert.True(t, ValuesEqual(tt.want, v), "got %#v", v)
			assert.Equal(t, tt.text, v.String())
			assert.NoError(t, CheckKind(tt.kind, v))
		})
	}
}

func TestParseValueEmpty(t *testing.T) {
	for _, kind := range QuestionKinds() {
		v, err := ParseValue(kind, "  ")
		require.NoError(t, err)
		assert.Nil(t, v, kind.String())
	}
}

func TestParseValueErrors(t *testing.T) {
	tests := []struct {
		kind QuestionKind
		text string
	}{
		{KindInteger, "4.5"},
		{KindDecimal, "abc"},
		{KindDate, "2024-13-01"},
		{KindTime, "25:00:00"},
		{KindDateTime, "yesterday"},
		{KindGeoPoint, "1"},
		{KindGeoPoint, "95 0"},
	}
	for _, tt := range tests {
		_, err := ParseValue(tt.kind, tt.text)
		assert.Error(t, err, "%s %q", tt.kind, tt.text)
	}
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, ValuesEqual(nil, Text("")))
	assert.True(t, ValuesEqual(MultiSelection{}, nil))
	assert.True(t, ValuesEqual(MultiSelection{"a", "b"}, MultiSelection{"a", "b"}))
	assert.False(t, ValuesEqual(MultiSelection{"a", "b"}, MultiSelection{"b", "a"}))
	assert.False(t, ValuesEqual(Text("1"), Integer(1)))
	assert.False(t, ValuesEqual(Selection("a"), MultiSelection{"a"}))
	assert.True(t, ValuesEqual(Integer(3), Integer(3)))
}

func TestCheckKindRejectsMismatch(t *testing.T) {
	assert.Error(t, CheckKind(KindInteger, Text("3")))
	assert.Error(t, CheckKind(KindSelectMulti, Selection("a")))
	assert.NoError(t, CheckKind(KindInteger, nil))
}

func TestNewDecimal(t *testing.T) {
	assert.Equal(t, Decimal("2.5"), NewDecimal(2.5))
	assert.Equal(t, Decimal("10"), NewDecimal(10))
	assert.InDelta(t, 2.5, Decimal("2.5").Float(), 1e-9)
}
