// Package config reads derive behaviors from their declarative XML form:
//
//	<Derive HansoftProject="Alpha.*" InvertedMatch="No" View="Backlog" Find="">
//	  <CustomColumn Name="Owner" Expression="item.?AssignedTo"/>
//	  <Risk Expression="item.Priority * 2"/>
//	</Derive>
//
// Each child element names the column it derives; see derive.ParseColumnSpec.
package config

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ezachrisen/derive"
)

type document struct {
	XMLName  xml.Name
	Project  *string   `xml:"HansoftProject,attr"`
	Inverted string    `xml:"InvertedMatch,attr"`
	View     *string   `xml:"View,attr"`
	Find     string    `xml:"Find,attr"`
	Columns  []element `xml:",any"`
}

type element struct {
	XMLName    xml.Name
	Name       string `xml:"Name,attr"`
	Expression string `xml:"Expression,attr"`
}

// Parse reads one behavior element from r. The root element's name is not
// checked. Every error is a *derive.ConfigurationError.
func Parse(r io.Reader) (derive.Config, error) {
	var doc document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return derive.Config{}, configError(fmt.Errorf("empty document"))
		}
		return derive.Config{}, configError(fmt.Errorf("decoding: %w", err))
	}
	return doc.config()
}

// ParseString is Parse for a document held in memory.
func ParseString(s string) (derive.Config, error) {
	return Parse(strings.NewReader(s))
}

// ParseFile reads the behavior element in the file at path.
func ParseFile(path string) (derive.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return derive.Config{}, fmt.Errorf("opening behavior file: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return derive.Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (d document) config() (derive.Config, error) {
	if d.Project == nil {
		return derive.Config{}, configError(fmt.Errorf("%w: HansoftProject", derive.ErrMissingField))
	}
	if d.View == nil {
		return derive.Config{}, configError(fmt.Errorf("%w: View", derive.ErrMissingField))
	}

	view, err := derive.ParseViewKind(*d.View)
	if err != nil {
		return derive.Config{}, configError(err)
	}

	cfg := derive.Config{
		Project:       *d.Project,
		InvertedMatch: strings.EqualFold(strings.TrimSpace(d.Inverted), "yes"),
		View:          view,
		Find:          d.Find,
	}

	for _, e := range d.Columns {
		spec, err := derive.ParseColumnSpec(e.XMLName.Local, e.Name, e.Expression)
		if err != nil {
			return derive.Config{}, configError(fmt.Errorf("element <%s>: %w", e.XMLName.Local, err))
		}
		cfg.Columns = append(cfg.Columns, spec)
	}
	return cfg, nil
}

func configError(err error) error {
	return &derive.ConfigurationError{Err: err}
}
