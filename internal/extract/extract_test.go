package extract

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRating(t *testing.T) {
	tests := []struct {
		label   string
		want    int
		wantErr bool
	}{
		{label: "Rated 4 stars out of five", want: 4},
		{label: "Rated 1 stars out of five", want: 1},
		{label: "Rated four stars out of five", want: 4},
		{label: "5", want: 5},
		{label: "Rated 9 stars out of five", wantErr: true},
		{label: "no stars here", wantErr: true},
		{label: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := ParseRating(tt.label)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Zero(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCount(t *testing.T) {
	n, err := ParseCount("1,234 people found this review helpful")
	require.NoError(t, err)
	assert.Equal(t, 1234, n)

	n, err = ParseCount("")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = ParseCount("helpful")
	assert.Error(t, err)
}

func TestNormalizeDate(t *testing.T) {
	tests := map[string]string{
		"March 3, 2024":             "2024-03-03T00:00:00Z",
		"Mar 3, 2024":               "2024-03-03T00:00:00Z",
		" December  31,  2023":      "2023-12-31T00:00:00Z",
		"2024-01-15":                "2024-01-15T00:00:00Z",
		"2024-01-15T10:00:00+02:00": "2024-01-15T08:00:00Z",
	}
	for in, want := range tests {
		got, err := NormalizeDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	got, err := NormalizeDate("yesterday")
	assert.Error(t, err)
	assert.Empty(t, got)
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "Great app, works well", CleanText("  Great app,\n\t works\u0000 well "))
}

func TestNormalizerSubstitutesSentinels(t *testing.T) {
	var buf bytes.Buffer
	n := Normalizer{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	rec, subs := n.Record(Raw{
		ID:         "gp:abc",
		Author:     " Jane ",
		Text:       "Nice",
		Rating:     "Rated many stars",
		Date:       "sometime",
		Engagement: "lots",
	})

	assert.Equal(t, "gp:abc", rec.ID)
	assert.Equal(t, "Jane", rec.Author)
	assert.Equal(t, "Nice", rec.Text)
	assert.Zero(t, rec.Rating)
	assert.Empty(t, rec.Date)
	assert.Zero(t, rec.Engagement)
	require.Len(t, subs, 3)
	assert.Equal(t, "rating", subs[0].Field)
	assert.Contains(t, buf.String(), "malformed field substituted")
}

func TestNormalizerAbsentFieldsAreNotSubstitutions(t *testing.T) {
	rec, subs := Normalizer{}.Record(Raw{ID: "x", Rating: "Rated 3 stars out of five", Date: "March 3, 2024"})
	assert.Empty(t, subs)
	assert.Equal(t, 3, rec.Rating)
	assert.Equal(t, "2024-03-03T00:00:00Z", rec.Date)
	assert.Zero(t, rec.Engagement)
}
