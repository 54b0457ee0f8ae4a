package provider

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"agrisaarthi/internal/domain"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Catalog is the canned data behind every simulated operation.
type Catalog struct {
	Utterances []string                    `yaml:"utterances"`
	Diagnoses  []string                    `yaml:"diagnoses"`
	Advice     map[domain.Role]AdviceTable `yaml:"advice"`
	Tips       TipPools                    `yaml:"tips"`
	Weather    Weather                     `yaml:"weather"`
}

// AdviceTable is an ordered keyword → advice list with a fallback.
// Suffix is appended to every reply for the role.
type AdviceTable struct {
	Rules   []AdviceRule `yaml:"rules"`
	Default string       `yaml:"default"`
	Suffix  string       `yaml:"suffix,omitempty"`
}

type AdviceRule struct {
	Keyword string `yaml:"keyword"`
	Advice  string `yaml:"advice"`
}

// Match returns the advice of the first rule whose keyword occurs in input,
// ignoring case, or the default when none does. The suffix is not applied.
func (t AdviceTable) Match(input string) string {
	lower := strings.ToLower(input)
	for _, r := range t.Rules {
		if strings.Contains(lower, strings.ToLower(r.Keyword)) {
			return r.Advice
		}
	}
	return t.Default
}

type TipPools struct {
	Lead     string   `yaml:"lead"`
	Farmer   []string `yaml:"farmer"`
	Gardener []string `yaml:"gardener"`
}

func (p TipPools) For(role domain.Role) []string {
	if role == domain.RoleFarmer {
		return p.Farmer
	}
	return p.Gardener
}

// DefaultCatalog parses the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// LoadCatalog reads a catalog file, or the embedded one when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	var errs []string
	if len(c.Utterances) == 0 {
		errs = append(errs, "utterances must not be empty")
	}
	if len(c.Diagnoses) == 0 {
		errs = append(errs, "diagnoses must not be empty")
	}
	for _, role := range []domain.Role{domain.RoleFarmer, domain.RoleGardener} {
		table, ok := c.Advice[role]
		if !ok || table.Default == "" {
			errs = append(errs, fmt.Sprintf("advice.%s.default must be set", role))
		}
		for i, r := range table.Rules {
			if r.Keyword == "" {
				errs = append(errs, fmt.Sprintf("advice.%s.rules[%d].keyword must be set", role, i))
			}
		}
		if len(c.Tips.For(role)) == 0 {
			errs = append(errs, fmt.Sprintf("tips.%s must not be empty", role))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid catalog:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
