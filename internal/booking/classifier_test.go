package booking

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	c := NewClassifier(DefaultMarkers())
	tests := []struct {
		name       string
		url        string
		body       string
		wantOK     bool
		wantSource string
		wantMarker string
	}{
		{
			name:       "url marker without body keyword",
			url:        "https://tempus-termine.com/termine/bestaetigung.php?id=9",
			body:       "Bitte warten",
			wantOK:     true,
			wantSource: "url",
			wantMarker: "bestaetigung",
		},
		{
			name:       "thank-you body",
			url:        "https://tempus-termine.com/termine/index.php",
			body:       "Vielen Dank für Ihre Buchung.",
			wantOK:     true,
			wantSource: "body",
			wantMarker: "Vielen Dank",
		},
		{
			name:       "upper-case body",
			body:       "IHRE TERMIN-ID LAUTET 4711",
			wantOK:     true,
			wantSource: "body",
			wantMarker: "Termin-ID",
		},
		{
			name:       "upper-case url",
			url:        "https://example.com/CONFIRMATION",
			wantOK:     true,
			wantSource: "url",
			wantMarker: "confirm",
		},
		{
			name:       "umlaut keyword folded",
			body:       "BESTÄTIGUNG IHRES TERMINS",
			wantOK:     true,
			wantSource: "body",
			wantMarker: "Bestätigung",
		},
		{
			name:       "url checked before body",
			url:        "https://example.com/confirm",
			body:       "Vielen Dank",
			wantOK:     true,
			wantSource: "url",
			wantMarker: "confirm",
		},
		{
			name: "still on form",
			url:  "https://tempus-termine.com/termine/index.php?anr=42",
			body: "Bitte füllen Sie alle Pflichtfelder aus.",
		},
		{
			name: "empty page",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := c.Classify(tt.url, tt.body)
			assert.Equal(t, tt.wantOK, v.Success)
			assert.Equal(t, tt.wantSource, v.Source)
			assert.Equal(t, tt.wantMarker, v.Marker)
			assert.Equal(t, v, c.Classify(tt.url, tt.body), "classification must be pure")
		})
	}
}

func TestClassifyFirstKeywordWins(t *testing.T) {
	c := NewClassifier(Markers{Body: []string{"gebucht", "Reference"}})
	v := c.ClassifyBody("Reference 12 – erfolgreich gebucht")
	assert.Equal(t, "gebucht", v.Marker)
}

func TestLoadMarkers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "markers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("body:\n  - Buchungsnummer\n"), 0o600))

	m, err := LoadMarkers(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Buchungsnummer"}, m.Body)
	assert.Equal(t, DefaultMarkers().URL, m.URL)

	c := NewClassifier(m)
	assert.True(t, c.Classify("", "Ihre BUCHUNGSNUMMER: 7").Success)
	assert.False(t, c.Classify("", "Vielen Dank").Success)
}

func TestLoadMarkersErrors(t *testing.T) {
	_, err := LoadMarkers(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: [unclosed"), 0o600))
	_, err = LoadMarkers(path)
	assert.Error(t, err)
}

func TestBlankMarkersIgnored(t *testing.T) {
	c := NewClassifier(Markers{Body: []string{"  ", ""}})
	assert.False(t, c.ClassifyBody("anything").Success)
}
