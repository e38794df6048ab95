// Package catalog exposes the read-only list of purchasable products.
package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Category string

const (
	CategoryCleansers    Category = "cleansers"
	CategoryMoisturizers Category = "moisturizers"
	CategorySunscreens   Category = "sunscreens"
	CategoryLipCare      Category = "lip care"
	CategoryToner        Category = "toner"
)

var ErrUnknownCategory = errors.New("unknown category")

func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategoryCleansers, CategoryMoisturizers, CategorySunscreens, CategoryLipCare, CategoryToner:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

type Product struct {
	ID          string          `json:"id" yaml:"id"`
	Name        string          `json:"name" yaml:"name"`
	Category    Category        `json:"category" yaml:"category"`
	Description string          `json:"description" yaml:"description"`
	Price       decimal.Decimal `json:"price" yaml:"-"`
	Rating      float64         `json:"rating" yaml:"rating"`
	Image       string          `json:"image" yaml:"image"`
}

// Provider is the read-only catalog collaborator. Get reports absence with ok=false.
type Provider interface {
	List(ctx context.Context) ([]Product, error)
	Get(ctx context.Context, id string) (Product, bool, error)
}

type StaticProvider struct {
	products []Product
	byID     map[string]int
}

func NewStaticProvider(products []Product) (*StaticProvider, error) {
	p := &StaticProvider{
		products: make([]Product, 0, len(products)),
		byID:     make(map[string]int, len(products)),
	}
	for _, prod := range products {
		if err := validate(prod); err != nil {
			return nil, err
		}
		if _, dup := p.byID[prod.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate product id %q", prod.ID)
		}
		p.byID[prod.ID] = len(p.products)
		p.products = append(p.products, prod)
	}
	return p, nil
}

func validate(p Product) error {
	if p.ID == "" || p.Name == "" {
		return fmt.Errorf("catalog: product %q needs id and name", p.ID)
	}
	if _, err := ParseCategory(string(p.Category)); err != nil {
		return fmt.Errorf("catalog: product %q: %w", p.ID, err)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("catalog: product %q has negative price", p.ID)
	}
	if p.Rating < 0 || p.Rating > 5 {
		return fmt.Errorf("catalog: product %q rating %.1f out of range", p.ID, p.Rating)
	}
	return nil
}

func (p *StaticProvider) List(context.Context) ([]Product, error) {
	return append([]Product(nil), p.products...), nil
}

func (p *StaticProvider) Get(_ context.Context, id string) (Product, bool, error) {
	i, ok := p.byID[id]
	if !ok {
		return Product{}, false, nil
	}
	return p.products[i], true, nil
}

//go:embed products.yaml
var defaultProducts []byte

type fileProduct struct {
	Product `yaml:",inline"`
	Price   string `yaml:"price"`
}

type file struct {
	Products []fileProduct `yaml:"products"`
}

// Parse reads a YAML catalog document.
func Parse(data []byte) ([]Product, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	out := make([]Product, 0, len(f.Products))
	for _, fp := range f.Products {
		price, err := decimal.NewFromString(fp.Price)
		if err != nil {
			return nil, fmt.Errorf("catalog: product %q price %q: %w", fp.ID, fp.Price, err)
		}
		p := fp.Product
		p.Price = price
		out = append(out, p)
	}
	return out, nil
}

// Load builds a provider from path, or from the embedded catalog when path is empty.
func Load(path string) (*StaticProvider, error) {
	data := defaultProducts
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		data = b
	}
	products, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return NewStaticProvider(products)
}
