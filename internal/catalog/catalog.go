package catalog

import (
	"bytes"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"orderfulfillment/internal/domain"
)

// Default returns the demo catalog.
func Default() []domain.Product {
	return []domain.Product{
		{ID: "P01", Name: "Laptop", Price: decimal.NewFromInt(150000), Stock: 10},
		{ID: "P02", Name: "Mouse", Price: decimal.NewFromInt(3500), Stock: 50},
		{ID: "P03", Name: "Keyboard", Price: decimal.NewFromInt(7000), Stock: 30},
		{ID: "P04", Name: "Monitor", Price: decimal.NewFromInt(45000), Stock: 5},
	}
}

type file struct {
	Products []product `yaml:"products"`
}

// Prices are read as strings so they never pass through a float.
type product struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Price string `yaml:"price"`
	Stock int    `yaml:"stock"`
}

// Load reads a YAML catalog of the form
//
//	products:
//	  - id: P01
//	    name: Laptop
//	    price: "150000"
//	    stock: 10
func Load(path string) ([]domain.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog and validates every product.
func Parse(data []byte) ([]domain.Product, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f file
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	if len(f.Products) == 0 {
		return nil, fmt.Errorf("catalog has no products")
	}

	products := make([]domain.Product, 0, len(f.Products))
	for i, p := range f.Products {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, fmt.Errorf("product %d (%s): invalid price %q: %w", i, p.ID, p.Price, err)
		}
		dp := domain.Product{ID: p.ID, Name: p.Name, Price: price, Stock: p.Stock}
		if err := dp.Validate(); err != nil {
			return nil, fmt.Errorf("product %d: %w", i, err)
		}
		products = append(products, dp)
	}
	return products, nil
}
