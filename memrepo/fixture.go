package memrepo

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// fixture is the YAML form of a repository:
//
//	projects:
//	  - name: Alpha
//	    backlog:
//	      customColumns: [Owner]
//	      items:
//	        - id: "1"
//	          fields: {Priority: 3, AssignedTo: ann}
//	          custom: {Owner: ""}
type fixture struct {
	Projects []projectFixture `yaml:"projects"`
}

type projectFixture struct {
	Name     string       `yaml:"name"`
	Backlog  *viewFixture `yaml:"backlog,omitempty"`
	Bugs     *viewFixture `yaml:"bugs,omitempty"`
	Schedule *viewFixture `yaml:"schedule,omitempty"`
}

type viewFixture struct {
	CustomColumns []string      `yaml:"customColumns,omitempty"`
	Items         []itemFixture `yaml:"items,omitempty"`
}

type itemFixture struct {
	ID     string         `yaml:"id,omitempty"`
	Fields map[string]any `yaml:"fields,omitempty"`
	Custom map[string]any `yaml:"custom,omitempty"`
}

// Load adds the projects in the YAML document to the repository. Items
// without an id are given a random one; a custom value for a column the view
// does not list defines the column.
func (r *Repository) Load(in io.Reader) error {
	var f fixture
	dec := yaml.NewDecoder(in)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return fmt.Errorf("decoding fixture: %w", err)
	}

	for _, pf := range f.Projects {
		if pf.Name == "" {
			return fmt.Errorf("fixture project without a name")
		}
		p := r.AddProject(pf.Name)
		pf.Backlog.load(p.backlog)
		pf.Bugs.load(p.bugs)
		pf.Schedule.load(p.schedule)
	}
	return nil
}

// LoadFile loads the YAML fixture at path.
func (r *Repository) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening fixture: %w", err)
	}
	defer f.Close()

	if err := r.Load(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func (vf *viewFixture) load(v *View) {
	if vf == nil {
		return
	}
	for _, c := range vf.CustomColumns {
		v.AddCustomColumn(c)
	}
	for _, it := range vf.Items {
		id := it.ID
		if id == "" {
			id = uuid.NewString()
		}
		for c := range it.Custom {
			v.AddCustomColumn(c)
		}
		v.AddItem(id, it.Fields, it.Custom)
	}
}

// Dump writes the repository's current state as a YAML fixture.
func (r *Repository) Dump(out io.Writer) error {
	var f fixture
	for _, p := range r.Projects() {
		f.Projects = append(f.Projects, projectFixture{
			Name:     p.name,
			Backlog:  dumpView(p.backlog),
			Bugs:     dumpView(p.bugs),
			Schedule: dumpView(p.schedule),
		})
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encoding fixture: %w", err)
	}
	return enc.Close()
}

// DumpFile writes the repository's current state to the file at path.
func (r *Repository) DumpFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating fixture: %w", err)
	}
	if err := r.Dump(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func dumpView(v *View) *viewFixture {
	items := v.Items()
	cols := v.CustomColumns()
	if len(items) == 0 && len(cols) == 0 {
		return nil
	}

	vf := &viewFixture{CustomColumns: cols}

	v.repo.mu.RLock()
	defer v.repo.mu.RUnlock()
	for _, it := range items {
		vf.Items = append(vf.Items, itemFixture{
			ID:     it.id,
			Fields: copyMap(it.fields),
			Custom: copyMap(it.custom),
		})
	}
	return vf
}
