package hierarchy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/adbauto/pkg/core"
)

func loadFixture(t *testing.T) *Document {
	t.Helper()
	doc, err := Load(filepath.Join("testdata", "login.xml"))
	require.NoError(t, err)
	return doc
}

func TestParseBounds(t *testing.T) {
	tests := []struct {
		in   string
		want core.Point
		ok   bool
	}{
		{"[0,0][1080,2400]", core.Point{X: 0, Y: 0}, true},
		{"[100,200][300,260]", core.Point{X: 100, Y: 200}, true},
		{"[-5,12][40,60]", core.Point{X: -5, Y: 12}, true},
		{"", core.Point{}, false},
		{"[100,200]", core.Point{}, false},
		{"100,200,300,260", core.Point{}, false},
		{"[a,b][c,d]", core.Point{}, false},
		{"[1,2][3]", core.Point{}, false},
		{"[1, 2][3,4]", core.Point{}, false},
		{"[99999999999999999999,1][2,3]", core.Point{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseBounds(tt.in)
		assert.Equal(t, tt.ok, ok, "ParseBounds(%q) ok", tt.in)
		assert.Equal(t, tt.want, got, "ParseBounds(%q)", tt.in)
	}
}

func TestParseRect(t *testing.T) {
	b, ok := ParseRect("[100,200][300,260]")
	require.True(t, ok)
	assert.Equal(t, core.Bounds{X: 100, Y: 200, Width: 200, Height: 60}, b)
	assert.Equal(t, core.Point{X: 200, Y: 230}, b.Center())
}

func TestDocument_Coordinates(t *testing.T) {
	doc := loadFixture(t)

	points, res := doc.Coordinates("//node[@class='android.widget.Button']")
	assert.True(t, res.Found())
	assert.Equal(t, []core.Point{{X: 100, Y: 200}, {X: 100, Y: 300}}, points)

	points, res = doc.Coordinates("//node[@text='Missing']")
	assert.Equal(t, core.LookupNotFound, res.Status)
	assert.Empty(t, points)
}

func TestDocument_Coordinates_BadXPath(t *testing.T) {
	doc := loadFixture(t)

	points, res := doc.Coordinates("//node[@text=")
	assert.Equal(t, core.LookupMalformed, res.Status)
	assert.Empty(t, points)
	assert.Error(t, res.Error())
}

func TestDocument_Coordinates_MalformedBounds(t *testing.T) {
	doc, err := Parse([]byte(`<hierarchy><node text="A" bounds="[1,2][3,4]"/><node text="B" bounds="oops"/><node text="C"/></hierarchy>`))
	require.NoError(t, err)

	points, res := doc.Coordinates("//node")
	assert.Equal(t, core.LookupMalformed, res.Status)
	assert.Empty(t, points)
	assert.ErrorIs(t, res.Err, core.ErrMalformedBounds)

	points, res = doc.Coordinates("//node[@text='A']")
	assert.True(t, res.Found())
	assert.Equal(t, []core.Point{{X: 1, Y: 2}}, points)
}

func TestDocument_Find(t *testing.T) {
	doc := loadFixture(t)

	points, match, res := doc.Find("//node[@class='android.widget.Button']", 1)
	require.True(t, res.Found())
	assert.Len(t, points, 2)
	require.NotNil(t, match)
	assert.Equal(t, core.Point{X: 100, Y: 300}, match.Point)

	el := match.Element()
	assert.Equal(t, "Sign up", el.Text)
	assert.Equal(t, "com.example:id/signup", el.ResourceID)
	assert.Equal(t, "android.widget.Button", el.Class)

	_, match, res = doc.Find("//node[@class='android.widget.Button']", 5)
	assert.True(t, res.Found())
	assert.Nil(t, match)
}

func TestDocument_Contains(t *testing.T) {
	doc := loadFixture(t)

	assert.True(t, doc.Contains("Sign up"))
	assert.True(t, doc.Contains("com.example:id/skip"))
	assert.False(t, doc.Contains("Checkout"))
}

func TestParse_DropsLeadingNoise(t *testing.T) {
	doc, err := Parse([]byte("UI hierchary dumped to: /sdcard/window_dump.xml\n<hierarchy><node text=\"x\" bounds=\"[0,0][1,1]\"/></hierarchy>"))
	require.NoError(t, err)
	assert.Equal(t, byte('<'), doc.Raw[0])

	_, err = Parse([]byte("ERROR: could not get idle state."))
	assert.ErrorIs(t, err, core.ErrMalformedHierarchy)

	_, err = Parse([]byte("<hierarchy><node"))
	assert.ErrorIs(t, err, core.ErrMalformedHierarchy)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.xml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
