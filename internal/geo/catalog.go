// internal/geo/catalog.go
package geo

import (
	"card-recommender/internal/domain"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/paulmach/orb"
)

//go:embed merchants.yaml
var defaultCatalogYAML []byte

// Catalog: неизменяемая таблица мерчантов. Загружается один раз при старте
// и разделяется всеми запросами.
type Catalog struct {
	merchants []domain.MerchantLocation
	bound     orb.Bound
}

type catalogFile struct {
	Merchants []domain.MerchantLocation `yaml:"merchants"`
}

// DefaultCatalog returns the built-in Buffalo Grove catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// LoadCatalog reads a catalog from a YAML file on disk.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %q: %w", path, err)
	}
	return ParseCatalog(data)
}

// OpenCatalog отдаёт встроенный каталог для пустого пути, иначе читает файл
func OpenCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	return LoadCatalog(path)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return NewCatalog(f.Merchants)
}

// NewCatalog копирует записи, поэтому вызывающий код не может изменить каталог.
func NewCatalog(merchants []domain.MerchantLocation) (*Catalog, error) {
	if len(merchants) == 0 {
		return nil, fmt.Errorf("catalog must contain at least one merchant")
	}

	c := &Catalog{merchants: make([]domain.MerchantLocation, len(merchants))}
	for i, m := range merchants {
		if strings.TrimSpace(m.Name) == "" {
			return nil, fmt.Errorf("merchant #%d has empty name", i)
		}
		if strings.TrimSpace(m.Category) == "" {
			return nil, fmt.Errorf("merchant %q has empty category", m.Name)
		}
		if m.Lat < -90 || m.Lat > 90 || m.Lng < -180 || m.Lng > 180 {
			return nil, fmt.Errorf("merchant %q has invalid coordinates (%f, %f)", m.Name, m.Lat, m.Lng)
		}
		c.merchants[i] = m

		p := orb.Point{m.Lng, m.Lat}
		if i == 0 {
			c.bound = p.Bound()
		} else {
			c.bound = c.bound.Extend(p)
		}
	}
	return c, nil
}

func (c *Catalog) Len() int {
	return len(c.merchants)
}

// Merchants returns a copy of the catalog entries in declaration order.
func (c *Catalog) Merchants() []domain.MerchantLocation {
	out := make([]domain.MerchantLocation, len(c.merchants))
	copy(out, c.merchants)
	return out
}

// Bound: прямоугольник, покрывающий все точки каталога
func (c *Catalog) Bound() orb.Bound {
	return c.bound
}

// Categories returns distinct categories in first-seen order.
func (c *Catalog) Categories() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range c.merchants {
		key := strings.ToLower(m.Category)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m.Category)
	}
	return out
}
