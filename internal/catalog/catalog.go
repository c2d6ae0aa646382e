// Package catalog holds the shop's service menu and prices front-desk
// selections against it.
package catalog

import (
	"bytes"
	_ "embed"
	"os"
	"strings"

	"github.com/Glen-Yegon/niapay-carwash1/internal/models"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultMenu []byte

var (
	ErrUnknownService = errors.New("unknown service")
	ErrInvalidPrice   = errors.New("service price must not be negative")
	ErrInvalidMenu    = errors.New("invalid service menu")
)

type Entry struct {
	Name  string `yaml:"name" json:"name"`
	Price int64  `yaml:"price" json:"price"`
}

type menuFile struct {
	Services []Entry `yaml:"services"`
}

// Selection is one service picked at the front desk. A nil Price is resolved
// from the menu.
type Selection struct {
	Name  string `json:"name"`
	Price *int64 `json:"price,omitempty"`
}

type Catalog struct {
	entries []Entry
	byName  map[string]Entry
}

func Default() *Catalog {
	c, err := Parse(defaultMenu)
	if err != nil {
		panic(errors.Wrap(err, "embedded service menu"))
	}
	return c
}

// Load reads a menu file, or returns the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read service menu %s", path)
	}
	c, err := Parse(content)
	if err != nil {
		return nil, errors.WithMessage(err, path)
	}
	return c, nil
}

func Parse(data []byte) (*Catalog, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.Wrap(ErrInvalidMenu, "menu is empty")
	}
	var file menuFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrapf(ErrInvalidMenu, "decode: %v", err)
	}
	c := &Catalog{byName: make(map[string]Entry, len(file.Services))}
	for _, entry := range file.Services {
		entry.Name = strings.TrimSpace(entry.Name)
		if entry.Name == "" {
			return nil, errors.Wrap(ErrInvalidMenu, "service without a name")
		}
		if entry.Price < 0 {
			return nil, errors.Wrapf(ErrInvalidMenu, "%s: negative price", entry.Name)
		}
		key := normalize(entry.Name)
		if _, dup := c.byName[key]; dup {
			return nil, errors.Wrapf(ErrInvalidMenu, "%s: listed twice", entry.Name)
		}
		c.byName[key] = entry
		c.entries = append(c.entries, entry)
	}
	if len(c.entries) == 0 {
		return nil, errors.Wrap(ErrInvalidMenu, "no services listed")
	}
	return c, nil
}

func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c *Catalog) Price(name string) (int64, bool) {
	entry, ok := c.byName[normalize(name)]
	return entry.Price, ok
}

// Resolve prices selections. Explicit prices are kept as given so that
// ad-hoc services can still be recorded.
func (c *Catalog) Resolve(selections []Selection) ([]models.ServiceLine, error) {
	lines := make([]models.ServiceLine, 0, len(selections))
	for _, sel := range selections {
		name := strings.TrimSpace(sel.Name)
		if sel.Price != nil {
			if *sel.Price < 0 {
				return nil, errors.Wrap(ErrInvalidPrice, name)
			}
			lines = append(lines, models.ServiceLine{Name: name, Price: *sel.Price})
			continue
		}
		entry, ok := c.byName[normalize(name)]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownService, "%q", name)
		}
		lines = append(lines, models.ServiceLine{Name: entry.Name, Price: entry.Price})
	}
	return lines, nil
}

// YAML renders the menu in the same format Parse reads.
func (c *Catalog) YAML() ([]byte, error) {
	return yaml.Marshal(menuFile{Services: c.entries})
}

func normalize(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
