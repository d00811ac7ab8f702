package hierarchy

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/antchfx/xmlquery"

	"github.com/devicelab-dev/adbauto/pkg/device"
	"github.com/devicelab-dev/adbauto/pkg/logger"
)

// RemoteDumpPath is where uiautomator writes on the device.
const RemoteDumpPath = "/sdcard/window_dump.xml"

// DumpOptions tunes a single dump.
type DumpOptions struct {
	Compressed bool   // uiautomator --compressed (drops layout-only nodes)
	MaxDepth   int    // 0 = unlimited; the hierarchy element is depth 0
	Path       string // overrides the Dumper path for this dump
}

// Dumper captures the UI hierarchy and writes it to a local file,
// overwriting what was there.
type Dumper struct {
	Session device.Session
	Path    string
}

// NewDumper creates a dumper writing to path.
func NewDumper(s device.Session, path string) *Dumper {
	return &Dumper{Session: s, Path: path}
}

// DumpCommand returns the shell command used to capture a dump.
func DumpCommand(compressed bool) string {
	flag := ""
	if compressed {
		flag = "--compressed "
	}
	return fmt.Sprintf("uiautomator dump %s%s > /dev/null && cat %s", flag, RemoteDumpPath, RemoteDumpPath)
}

// Dump captures the current hierarchy, writes it to disk and returns it.
func (d *Dumper) Dump(opts DumpOptions) (*Document, error) {
	out, err := d.Session.ShellBytes(DumpCommand(opts.Compressed))
	if err != nil {
		return nil, fmt.Errorf("dump hierarchy: %w", err)
	}

	doc, err := Parse(out)
	if err != nil {
		return nil, err
	}

	if opts.MaxDepth > 0 {
		Prune(doc.root, opts.MaxDepth)
		doc.Raw = []byte(doc.root.OutputXML(true))
	}

	path := d.Path
	if opts.Path != "" {
		path = opts.Path
	}
	if path != "" {
		if err := writeFile(path, doc.Raw); err != nil {
			return nil, err
		}
		doc.Path = path
	}

	logger.Debug("hierarchy dumped: %d bytes -> %s", len(doc.Raw), path)
	return doc, nil
}

// Prune removes element nodes deeper than maxDepth below the top element.
func Prune(root *xmlquery.Node, maxDepth int) {
	top := root
	if top.Type == xmlquery.DocumentNode {
		for c := root.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == xmlquery.ElementNode {
				top = c
				break
			}
		}
	}
	prune(top, 0, maxDepth)
}

func prune(n *xmlquery.Node, depth, maxDepth int) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == xmlquery.ElementNode {
			if depth+1 > maxDepth {
				xmlquery.RemoveFromTree(c)
			} else {
				prune(c, depth+1, maxDepth)
			}
		}
		c = next
	}
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //#nosec G306 -- dumps are not secret
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
