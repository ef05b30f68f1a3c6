// Package seed loads demo data from a YAML fixture file.
package seed

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dukerupert/cloudlicensepro/internal/model"
	"github.com/dukerupert/cloudlicensepro/internal/store"
	"gopkg.in/yaml.v3"
)

type File struct {
	Developers []Developer `yaml:"developers"`
	Resellers  []Reseller  `yaml:"resellers"`
}

type Developer struct {
	ID        string     `yaml:"id"`
	Products  []Product  `yaml:"products"`
	Customers []Customer `yaml:"customers"`
	Licenses  []License  `yaml:"licenses"`
}

type Product struct {
	Name                string `yaml:"name"`
	Description         string `yaml:"description"`
	PriceCents          int64  `yaml:"price_cents"`
	LicenseType         string `yaml:"license_type"`
	DefaultDurationDays *int   `yaml:"default_duration_days"`
	MaxActivations      *int   `yaml:"max_activations"`
}

type Customer struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// License references its product by name and its customer by email.
type License struct {
	Key            string     `yaml:"key"`
	Product        string     `yaml:"product"`
	Customer       string     `yaml:"customer"`
	Status         string     `yaml:"status"`
	Type           string     `yaml:"type"`
	ExpiresAt      *time.Time `yaml:"expires_at"`
	MaxActivations *int       `yaml:"max_activations"`
	Machines       []string   `yaml:"machines"`
}

type Reseller struct {
	UserID          string    `yaml:"user_id"`
	Name            string    `yaml:"name"`
	Email           string    `yaml:"email"`
	DiscountPercent int       `yaml:"discount_percent"`
	Listings        []Listing `yaml:"listings"`
}

type Listing struct {
	Product       string   `yaml:"product"`
	MarkupPercent int      `yaml:"markup_percent"`
	Stock         int      `yaml:"stock"`
	SoldTo        []string `yaml:"sold_to"`
}

// Stores are the writers Apply inserts through.
type Stores struct {
	Products     *store.ProductStore
	Customers    *store.CustomerStore
	Licenses     *store.LicenseStore
	Resellers    *store.ResellerStore
	CustomerKeys *store.CustomerKeyStore
}

// Summary counts the rows Apply created.
type Summary struct {
	Products     int
	Customers    int
	Licenses     int
	Activations  int
	Resellers    int
	Listings     int
	CustomerKeys int
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing seed YAML: %w", err)
	}
	return &f, nil
}

// Apply inserts f in dependency order. Product names must be unique across
// the file since licenses and listings refer to products by name.
func Apply(ctx context.Context, s Stores, f *File) (Summary, error) {
	var sum Summary
	products := make(map[string]*model.Product)

	for _, d := range f.Developers {
		if d.ID == "" {
			return sum, fmt.Errorf("developer without id")
		}

		for _, p := range d.Products {
			if _, dup := products[p.Name]; dup {
				return sum, fmt.Errorf("duplicate product %q", p.Name)
			}
			created, err := s.Products.Create(ctx, &model.Product{
				DeveloperID:         d.ID,
				Name:                p.Name,
				Description:         p.Description,
				PriceCents:          p.PriceCents,
				LicenseType:         p.LicenseType,
				DefaultDurationDays: p.DefaultDurationDays,
				MaxActivations:      p.MaxActivations,
			})
			if err != nil {
				return sum, fmt.Errorf("product %q: %w", p.Name, err)
			}
			products[p.Name] = created
			sum.Products++
		}

		customers := make(map[string]string)
		for _, c := range d.Customers {
			created, err := s.Customers.Create(ctx, d.ID, c.Name, c.Email)
			if err != nil {
				return sum, fmt.Errorf("customer %q: %w", c.Email, err)
			}
			customers[created.Email] = created.ID
			sum.Customers++
		}

		for _, l := range d.Licenses {
			p, ok := products[l.Product]
			if !ok || p.DeveloperID != d.ID {
				return sum, fmt.Errorf("license %q: unknown product %q", l.Key, l.Product)
			}
			lic := &model.License{
				Key:            l.Key,
				ProductID:      p.ID,
				DeveloperID:    d.ID,
				Status:         l.Status,
				Type:           l.Type,
				ExpiresAt:      l.ExpiresAt,
				MaxActivations: l.MaxActivations,
			}
			if lic.MaxActivations == nil {
				lic.MaxActivations = p.MaxActivations
			}
			if l.Customer != "" {
				c, err := s.Customers.FindOrCreate(ctx, d.ID, "", l.Customer)
				if err != nil {
					return sum, fmt.Errorf("license %q customer: %w", l.Key, err)
				}
				if _, known := customers[c.Email]; !known {
					customers[c.Email] = c.ID
					sum.Customers++
				}
				lic.CustomerID = &c.ID
			}
			created, err := s.Licenses.Create(ctx, lic)
			if err != nil {
				return sum, fmt.Errorf("license %q: %w", l.Key, err)
			}
			sum.Licenses++

			for _, m := range l.Machines {
				if _, err := s.Licenses.AddActivation(ctx, created.ID, m); err != nil {
					return sum, fmt.Errorf("license %q activation %q: %w", l.Key, m, err)
				}
				sum.Activations++
			}
		}
	}

	for _, r := range f.Resellers {
		reseller, err := s.Resellers.Create(ctx, r.UserID, r.Name, r.Email, r.DiscountPercent)
		if err != nil {
			return sum, fmt.Errorf("reseller %q: %w", r.Name, err)
		}
		sum.Resellers++

		for _, ls := range r.Listings {
			p, ok := products[ls.Product]
			if !ok {
				return sum, fmt.Errorf("reseller %q: unknown product %q", r.Name, ls.Product)
			}
			listing, err := s.Resellers.CreateListing(ctx, reseller.ID, p.ID, ls.MarkupPercent)
			if err != nil {
				return sum, fmt.Errorf("listing %q: %w", ls.Product, err)
			}
			sum.Listings++

			if ls.Stock > 0 {
				if _, err := s.Resellers.PurchaseInventory(ctx, reseller.ID, listing.ID, ls.Stock); err != nil {
					return sum, fmt.Errorf("listing %q stock: %w", ls.Product, err)
				}
			}
			for _, email := range ls.SoldTo {
				if _, err := s.CustomerKeys.SellKey(ctx, reseller.ID, listing.ID, email); err != nil {
					return sum, fmt.Errorf("listing %q sale to %q: %w", ls.Product, email, err)
				}
				sum.CustomerKeys++
			}
		}
	}

	return sum, nil
}
