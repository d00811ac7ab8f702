package checker

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/devicelab-dev/adbauto/pkg/core"
	"github.com/devicelab-dev/adbauto/pkg/device/mock"
	"github.com/devicelab-dev/adbauto/pkg/flow"
	"github.com/devicelab-dev/adbauto/pkg/hierarchy"
	"github.com/devicelab-dev/adbauto/pkg/poll"
)

const (
	loginScreen = `<hierarchy><node text="Welcome" bounds="[0,0][100,50]"/><node text="Login" resource-id="app:id/login" bounds="[10,60][90,90]"/></hierarchy>`
	homeScreen  = `<hierarchy><node text="Home" resource-id="app:id/home" bounds="[0,0][100,50]"/><node text="Home" resource-id="app:id/tab" bounds="[0,900][100,950]"/></hierarchy>`
)

type tapRecorder struct{ taps []core.Point }

func (r *tapRecorder) Tap(x, y int) error {
	r.taps = append(r.taps, core.Point{X: x, Y: y})
	return nil
}

// screens serves the given dumps in order, repeating the last one.
func newTestChecker(screens ...string) (*Checker, *mock.Session, *tapRecorder) {
	s := mock.New()
	n := 0
	s.Handler = func(cmd string) ([]byte, error) {
		if !strings.HasPrefix(cmd, "uiautomator dump") {
			return nil, nil
		}
		i := n
		if i >= len(screens) {
			i = len(screens) - 1
		}
		n++
		return []byte(screens[i]), nil
	}

	p := poll.New(500 * time.Millisecond)
	p.Sleep = func(time.Duration) {}

	tap := &tapRecorder{}
	in := hierarchy.NewIntrospector(hierarchy.NewDumper(s, ""), p)
	return New(in, tap), s, tap
}

var conditions = []flow.Condition{
	{Name: "home", XPath: "//node[@resource-id='app:id/home']"},
	{Name: "login", XPath: "//node[@text='Login']"},
}

func TestFirstMatching_ReturnsFirstConditionInOrder(t *testing.T) {
	c, s, _ := newTestChecker(homeScreen)

	both := []flow.Condition{
		{Name: "tab", XPath: "//node[@resource-id='app:id/tab']"},
		{Name: "home", XPath: "//node[@resource-id='app:id/home']"},
	}
	name, res := c.FirstMatching(both, Options{})
	assert.Equal(t, "tab", name)
	assert.True(t, res.Found())
	assert.Equal(t, 1, s.Count("uiautomator dump"))
}

func TestFirstMatching_WaitsForScreen(t *testing.T) {
	c, s, _ := newTestChecker(`<hierarchy/>`, `<hierarchy/>`, loginScreen)

	name, res := c.FirstMatching(conditions, Options{})
	assert.Equal(t, "login", name)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, s.Count("uiautomator dump"))
}

func TestFirstMatching_NotElement(t *testing.T) {
	c, s, _ := newTestChecker(`<hierarchy/>`)

	name, res := c.FirstMatching(conditions, Options{Repeat: 4})
	assert.Equal(t, NotElement, name)
	assert.False(t, res.Found())
	assert.Equal(t, 4, s.Count("uiautomator dump"))

	s.Reset()
	name, _ = c.FirstMatching(conditions, Options{})
	assert.Equal(t, NotElement, name)
	assert.Equal(t, DefaultRepeat, s.Count("uiautomator dump"))
}

func TestFirstMatching_Index(t *testing.T) {
	c, _, _ := newTestChecker(homeScreen)

	conds := []flow.Condition{
		{Name: "first", XPath: "//node[@resource-id='app:id/home']"},
		{Name: "second", XPath: "//node[@text='Home']"},
	}
	name, _ := c.FirstMatching(conds, Options{Index: 1, Repeat: 2})
	assert.Equal(t, "second", name)
}

func TestFirstMatching_MalformedConditionReported(t *testing.T) {
	c, _, _ := newTestChecker(loginScreen)

	name, res := c.FirstMatching([]flow.Condition{{Name: "bad", XPath: "//node["}}, Options{Repeat: 2})
	assert.Equal(t, NotElement, name)
	assert.Equal(t, core.LookupMalformed, res.Status)
}

func TestCheckElement_Click(t *testing.T) {
	c, _, tap := newTestChecker(`<hierarchy/>`, homeScreen)

	ok, res := c.CheckElement("//node[@text='Home']", Options{Index: 1, Click: true})
	assert.True(t, ok)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, []core.Point{{X: 0, Y: 900}}, tap.taps)
}

func TestCheckElement_NoClick(t *testing.T) {
	c, _, tap := newTestChecker(homeScreen)

	ok, _ := c.CheckElement("//node[@text='Home']", Options{})
	assert.True(t, ok)
	assert.Empty(t, tap.taps)
}

func TestCheckElement_IndexOutOfRange(t *testing.T) {
	c, s, tap := newTestChecker(homeScreen)

	ok, res := c.CheckElement("//node[@text='Home']", Options{Index: 2, Repeat: 3, Click: true})
	assert.False(t, ok)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, s.Count("uiautomator dump"))
	assert.Empty(t, tap.taps)
}
