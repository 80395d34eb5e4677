package regions

import (
	"math"

	"petakeu/pkg/contracts/domain"
)

// Page size defaults for region listings
const (
	DefaultPage     = 1
	DefaultPageSize = 25
	MaxPageSize     = 500
)

// Catalog is the read-only set of known regions and their boundaries
type Catalog struct {
	regions    []domain.Region
	byID       map[string]domain.Region
	byCode     map[string]domain.Region
	geometries map[string]domain.Geometry
}

// NewCatalog indexes regions and geometries. Geometries are keyed by region ID.
func NewCatalog(regions []domain.Region, geometries map[string]domain.Geometry) *Catalog {
	c := &Catalog{
		regions:    make([]domain.Region, len(regions)),
		byID:       make(map[string]domain.Region, len(regions)),
		byCode:     make(map[string]domain.Region, len(regions)),
		geometries: make(map[string]domain.Geometry, len(geometries)),
	}
	copy(c.regions, regions)
	for _, r := range regions {
		c.byID[r.ID] = r
		c.byCode[r.Code] = r
	}
	for id, g := range geometries {
		c.geometries[id] = g
	}
	return c
}

// Get returns the region with the given ID
func (c *Catalog) Get(id string) (domain.Region, bool) {
	r, ok := c.byID[id]
	return r, ok
}

// ByCode returns the region with the given BPS code
func (c *Catalog) ByCode(code string) (domain.Region, bool) {
	r, ok := c.byCode[code]
	return r, ok
}

// Geometry returns the boundary of a region, if it has one
func (c *Catalog) Geometry(id string) (domain.Geometry, bool) {
	g, ok := c.geometries[id]
	return g, ok
}

// All returns every region in catalog order
func (c *Catalog) All() []domain.Region {
	out := make([]domain.Region, len(c.regions))
	copy(out, c.regions)
	return out
}

// ListQuery filters and pages a region listing. Zero values mean no filter
// and default paging.
type ListQuery struct {
	Level    domain.RegionLevel
	Parent   string
	Page     int
	PageSize int
}

// List returns one page of regions matching q in catalog order
func (c *Catalog) List(q ListQuery) domain.RegionPage {
	filtered := make([]domain.Region, 0, len(c.regions))
	for _, r := range c.regions {
		if q.Level != "" && r.Level != q.Level {
			continue
		}
		if q.Parent != "" && r.ParentID != q.Parent {
			continue
		}
		filtered = append(filtered, r)
	}
	return Paginate(filtered, q.Page, q.PageSize)
}

// Paginate slices items into the requested page. page and pageSize below 1
// fall back to the defaults; pages past the end are empty.
func Paginate(items []domain.Region, page, pageSize int) domain.RegionPage {
	if page < 1 {
		page = DefaultPage
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	total := len(items)
	totalPages := int(math.Ceil(float64(total) / float64(pageSize)))
	if totalPages == 0 {
		totalPages = 1
	}

	data := []domain.Region{}
	start := (page - 1) * pageSize
	if start < total {
		end := min(start+pageSize, total)
		data = append(data, items[start:end]...)
	}

	return domain.RegionPage{
		Data: data,
		Meta: domain.PageMeta{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
		},
	}
}

func polygon(ring ...[2]float64) domain.Geometry {
	return domain.Geometry{Type: "Polygon", Coordinates: [][][2]float64{ring}}
}

// DefaultCatalog returns the built-in province and city catalog. Kota
// Makassar has no boundary.
func DefaultCatalog() *Catalog {
	regions := []domain.Region{
		{ID: "prov-31", Code: "31", Name: "DKI Jakarta", Level: domain.RegionLevelProvince},
		{ID: "prov-32", Code: "32", Name: "Jawa Barat", Level: domain.RegionLevelProvince},
		{ID: "prov-33", Code: "33", Name: "Jawa Tengah", Level: domain.RegionLevelProvince},
		{ID: "prov-35", Code: "35", Name: "Jawa Timur", Level: domain.RegionLevelProvince},
		{ID: "prov-51", Code: "51", Name: "Bali", Level: domain.RegionLevelProvince},
		{ID: "prov-73", Code: "73", Name: "Sulawesi Selatan", Level: domain.RegionLevelProvince},
		{ID: "city-jakarta", Code: "3171", Name: "DKI Jakarta", Level: domain.RegionLevelRegency, ParentID: "prov-31"},
		{ID: "city-bandung", Code: "3273", Name: "Kota Bandung", Level: domain.RegionLevelRegency, ParentID: "prov-32"},
		{ID: "city-semarang", Code: "3374", Name: "Kota Semarang", Level: domain.RegionLevelRegency, ParentID: "prov-33"},
		{ID: "city-surabaya", Code: "3578", Name: "Kota Surabaya", Level: domain.RegionLevelRegency, ParentID: "prov-35"},
		{ID: "city-denpasar", Code: "5171", Name: "Kota Denpasar", Level: domain.RegionLevelRegency, ParentID: "prov-51"},
		{ID: "city-makassar", Code: "7371", Name: "Kota Makassar", Level: domain.RegionLevelRegency, ParentID: "prov-73"},
	}

	geometries := map[string]domain.Geometry{
		"city-jakarta":  polygon([2]float64{106.7, -6.05}, [2]float64{107.0, -6.05}, [2]float64{107.0, -6.4}, [2]float64{106.7, -6.4}, [2]float64{106.7, -6.05}),
		"city-bandung":  polygon([2]float64{107.55, -6.8}, [2]float64{107.75, -6.8}, [2]float64{107.75, -7.05}, [2]float64{107.55, -7.05}, [2]float64{107.55, -6.8}),
		"city-semarang": polygon([2]float64{110.3, -6.8}, [2]float64{110.55, -6.8}, [2]float64{110.55, -7.1}, [2]float64{110.3, -7.1}, [2]float64{110.3, -6.8}),
		"city-surabaya": polygon([2]float64{112.6, -7.15}, [2]float64{112.85, -7.15}, [2]float64{112.85, -7.35}, [2]float64{112.6, -7.35}, [2]float64{112.6, -7.15}),
		"city-denpasar": polygon([2]float64{115.15, -8.55}, [2]float64{115.3, -8.55}, [2]float64{115.3, -8.75}, [2]float64{115.15, -8.75}, [2]float64{115.15, -8.55}),
	}

	return NewCatalog(regions, geometries)
}
