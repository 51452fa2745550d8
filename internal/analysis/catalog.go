// Package analysis builds address classification prompts and turns model
// replies into AnalysisResults.
package analysis

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/address-analyzer/internal/types"
)

//go:embed categories.yaml
var defaultCatalogYAML []byte

// PromptSettings holds the deployment specific prompt wording
type PromptSettings struct {
	// Discourage names a catch-all category the model should avoid unless nothing else fits
	Discourage int      `yaml:"discourage"`
	Focus      []string `yaml:"focus"`
}

type catalogFile struct {
	Categories []types.Category `yaml:"categories"`
	Prompt     PromptSettings   `yaml:"prompt"`
}

// Catalog is the immutable, ordered category list of a deployment
type Catalog struct {
	categories []types.Category
	byID       map[int]types.Category
	prompt     PromptSettings
}

// DefaultCatalog returns the built-in catalog
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded category catalog is invalid: %v", err))
	}
	return c
}

// LoadCatalog reads a catalog from a YAML file, or the built-in one when path is empty
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse category catalog: %w", err)
	}
	return NewCatalog(file.Categories, file.Prompt)
}

// NewCatalog validates categories and builds a catalog preserving their order
func NewCatalog(categories []types.Category, prompt PromptSettings) (*Catalog, error) {
	if len(categories) == 0 {
		return nil, fmt.Errorf("category catalog is empty")
	}

	byID := make(map[int]types.Category, len(categories))
	for _, c := range categories {
		if c.ID <= 0 {
			return nil, fmt.Errorf("category %q has non-positive id %d", c.Title, c.ID)
		}
		if c.Title == "" {
			return nil, fmt.Errorf("category %d has no title", c.ID)
		}
		if _, dup := byID[c.ID]; dup {
			return nil, fmt.Errorf("duplicate category id %d", c.ID)
		}
		byID[c.ID] = c
	}
	if prompt.Discourage != 0 {
		if _, ok := byID[prompt.Discourage]; !ok {
			return nil, fmt.Errorf("discouraged category %d is not in the catalog", prompt.Discourage)
		}
	}

	out := make([]types.Category, len(categories))
	copy(out, categories)
	return &Catalog{categories: out, byID: byID, prompt: prompt}, nil
}

// Categories returns a copy of the categories in declaration order
func (c *Catalog) Categories() []types.Category {
	out := make([]types.Category, len(c.categories))
	copy(out, c.categories)
	return out
}

// Get looks up a category by id
func (c *Catalog) Get(id int) (types.Category, bool) {
	cat, ok := c.byID[id]
	return cat, ok
}

// Contains reports whether id is a configured category
func (c *Catalog) Contains(id int) bool {
	_, ok := c.byID[id]
	return ok
}

// IDs returns the configured ids in ascending order
func (c *Catalog) IDs() []int {
	ids := make([]int, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Range returns the smallest and largest configured id
func (c *Catalog) Range() (lo, hi int) {
	ids := c.IDs()
	return ids[0], ids[len(ids)-1]
}

// Prompt returns the prompt wording settings
func (c *Catalog) Prompt() PromptSettings {
	return c.prompt
}
