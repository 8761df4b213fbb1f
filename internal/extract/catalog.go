package extract

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geoharvest/internal/config"
	"github.com/sells-group/geoharvest/internal/harvest"
	"github.com/sells-group/geoharvest/pkg/geocode"
)

// Info describes a registered extractor.
type Info struct {
	Name        string
	Description string
	// DefaultDelay paces items when the run does not set its own delay.
	DefaultDelay time.Duration
}

// Deps are the shared clients handed to extractor factories.
type Deps struct {
	HTTP     Getter
	Geocoder geocode.Client
}

// Factory builds an extractor.
type Factory func(deps Deps) (harvest.Extractor, error)

type entry struct {
	info    Info
	factory Factory
}

// Catalog maps extractor names to factories.
type Catalog struct {
	entries map[string]entry
	order   []string // insertion order for deterministic listing
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]entry)}
}

// Register adds or replaces an extractor.
func (c *Catalog) Register(info Info, f Factory) {
	if _, ok := c.entries[info.Name]; !ok {
		c.order = append(c.order, info.Name)
	}
	c.entries[info.Name] = entry{info: info, factory: f}
}

// Info returns the description of a registered extractor.
func (c *Catalog) Info(name string) (Info, error) {
	e, ok := c.entries[name]
	if !ok {
		return Info{}, eris.Errorf("extract: unknown extractor %q (have %v)", name, c.order)
	}
	return e.info, nil
}

// Build constructs the named extractor.
func (c *Catalog) Build(name string, deps Deps) (harvest.Extractor, error) {
	e, ok := c.entries[name]
	if !ok {
		return nil, eris.Errorf("extract: unknown extractor %q (have %v)", name, c.order)
	}
	ext, err := e.factory(deps)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: build %s", name)
	}
	return ext, nil
}

// All lists registered extractors in registration order.
func (c *Catalog) All() []Info {
	out := make([]Info, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.entries[name].info)
	}
	return out
}

func ms(n int) time.Duration {
	return time.Duration(max(n, 0)) * time.Millisecond
}

// DefaultCatalog registers the built-in extractors configured from cfg.
func DefaultCatalog(cfg *config.Config) *Catalog {
	c := NewCatalog()

	c.Register(Info{
		Name:         "registry",
		Description:  "cadastral registry: number search, then object detail (JSON)",
		DefaultDelay: ms(cfg.Registry.DelayMs),
	}, func(d Deps) (harvest.Extractor, error) {
		return NewRegistry(d.HTTP, RegistryOptions{
			LookupURL:  cfg.Registry.LookupURL,
			DetailURL:  cfg.Registry.DetailURL,
			IDPath:     cfg.Registry.IDPath,
			DropFields: cfg.Registry.DropFields,
		})
	})

	c.Register(Info{
		Name:         "geocode",
		Description:  "address geocoding (Yandex, Google fallback)",
		DefaultDelay: ms(cfg.Geocode.DelayMs),
	}, func(d Deps) (harvest.Extractor, error) {
		return NewGeocode(d.Geocoder, cfg.Geocode.AddressField, cfg.Geocode.City)
	})

	c.Register(Info{
		Name:         "bbox",
		Description:  "features inside a bounding box (OSM-style XML)",
		DefaultDelay: ms(cfg.BBox.DelayMs),
	}, func(d Deps) (harvest.Extractor, error) {
		return NewBBox(d.HTTP, BBoxOptions{
			URL:            cfg.BBox.URL,
			Element:        cfg.BBox.Element,
			SplitThreshold: cfg.BBox.SplitThreshold,
		})
	})

	c.Register(Info{
		Name:         "page",
		Description:  "HTML page scrape (title, description, h1, regex fields)",
		DefaultDelay: ms(cfg.Page.DelayMs),
	}, func(d Deps) (harvest.Extractor, error) {
		return NewPage(d.HTTP, PageOptions{
			URLTemplate: cfg.Page.URLTemplate,
			UserAgent:   cfg.Page.UserAgent,
			Timeout:     time.Duration(cfg.Page.TimeoutSecs) * time.Second,
			Fields:      cfg.Page.Fields,
			Required:    cfg.Page.Required,
		})
	})

	return c
}
