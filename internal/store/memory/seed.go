package memory

import (
	"time"

	"github.com/shopspring/decimal"

	"barberpos/backend/internal/domain"
)

func seedData(now time.Time) data {
	d := emptyData()

	for _, p := range []domain.Product{
		{ID: "prod-pomade", Name: "Matte Pomade 100g", Barcode: "7891000100011", Price: decimal.RequireFromString("39.90"), Cost: decimal.RequireFromString("18.00"), Stock: 20, MinStock: 5},
		{ID: "prod-beard-oil", Name: "Beard Oil 30ml", Barcode: "7891000100028", Price: decimal.RequireFromString("29.90"), Cost: decimal.RequireFromString("12.50"), Stock: 15, MinStock: 4},
		{ID: "prod-shampoo", Name: "Anti-dandruff Shampoo", Barcode: "7891000100035", Price: decimal.RequireFromString("24.50"), Cost: decimal.RequireFromString("10.00"), Stock: 12, MinStock: 3},
		{ID: "prod-aftershave", Name: "Aftershave Balm", Barcode: "7891000100042", Price: decimal.RequireFromString("34.00"), Cost: decimal.RequireFromString("15.00"), Stock: 8, MinStock: 2},
		{ID: "prod-comb", Name: "Wooden Comb", Barcode: "7891000100059", Price: decimal.RequireFromString("12.00"), Cost: decimal.RequireFromString("4.00"), Stock: 30, MinStock: 10},
	} {
		d.Products[p.ID] = p
	}

	for _, svc := range []domain.Service{
		{ID: "svc-haircut", Name: "Haircut", Price: decimal.NewFromInt(35), DurationMinutes: 30, CommissionPercentage: decimal.NewFromInt(40)},
		{ID: "svc-beard", Name: "Beard Trim", Price: decimal.NewFromInt(25), DurationMinutes: 20, CommissionPercentage: decimal.NewFromInt(40)},
		{ID: "svc-combo", Name: "Haircut and Beard", Price: decimal.NewFromInt(55), DurationMinutes: 50, CommissionPercentage: decimal.NewFromInt(45)},
		{ID: "svc-kids", Name: "Kids Haircut", Price: decimal.NewFromInt(30), DurationMinutes: 25, CommissionPercentage: decimal.NewFromInt(50)},
	} {
		d.Services[svc.ID] = svc
	}

	for _, b := range []domain.Barber{
		{ID: "barber-joao", Name: "Joao", Active: true},
		{ID: "barber-rafa", Name: "Rafa", Active: true},
		{ID: "barber-caio", Name: "Caio", Active: false},
	} {
		d.Barbers[b.ID] = b
	}

	for _, c := range []domain.Customer{
		{ID: "cust-marcos", Name: "Marcos Lima", Phone: "+55 11 98888-0001", CreatedAt: now},
		{ID: "cust-pedro", Name: "Pedro Alves", Phone: "+55 11 98888-0002", CreatedAt: now},
		{ID: "cust-lucas", Name: "Lucas Souza", CreatedAt: now},
	} {
		d.Customers[c.ID] = c
	}

	return d
}
