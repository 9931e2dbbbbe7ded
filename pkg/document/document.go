// Package document reads simulation-report XML files: the building list and
// the per-building chart references and risk tables.
package document

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/antchfx/xmlquery"
)

// ErrNoDocument is returned when a document path is empty.
var ErrNoDocument = errors.New("no document selected")

// Building is one OBJECT element of the report.
type Building struct {
	Name string
	Node *xmlquery.Node
}

// Document is a parsed report together with the directory its chart images
// are resolved against.
type Document struct {
	Path      string
	Dir       string
	Root      *xmlquery.Node
	Buildings []Building
}

// Load parses the report at path.
func Load(path string) (*Document, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrNoDocument
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer f.Close()
	doc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	doc.Path = path
	doc.Dir = filepath.Dir(path)
	return doc, nil
}

// Parse reads a report from r. The returned document has no directory set.
func Parse(r io.Reader) (*Document, error) {
	root, err := xmlquery.Parse(r)
	if err != nil {
		return nil, err
	}
	if xmlquery.FindOne(root, "/*") == nil {
		return nil, errors.New("document has no root element")
	}
	objects, err := xmlquery.QueryAll(root, "//OBJECT")
	if err != nil {
		return nil, err
	}
	doc := &Document{Root: root}
	for _, obj := range objects {
		doc.Buildings = append(doc.Buildings, Building{Name: obj.SelectAttr("HEADING"), Node: obj})
	}
	return doc, nil
}

// text is the trimmed text of the first node matching expr under n, or "".
func text(n *xmlquery.Node, expr string) (string, bool) {
	el := xmlquery.FindOne(n, expr)
	if el == nil {
		return "", false
	}
	return strings.TrimSpace(el.InnerText()), true
}
