package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"barberpos/backend/internal/domain"
	"barberpos/backend/internal/store"
)

// Inventory adjusts product stock. Every write goes through a change set so
// stock can never go below zero.
type Inventory struct {
	repo   store.Repository
	logger *zap.Logger
}

func NewInventory(repo store.Repository, logger *zap.Logger) *Inventory {
	return &Inventory{repo: repo, logger: logger}
}

// Plan aggregates the product lines of a cart per product and checks every
// total against current stock. The returned deltas are negative.
func (inv *Inventory) Plan(ctx context.Context, items []domain.CartItem) ([]store.StockDelta, error) {
	order := make([]string, 0, len(items))
	requested := make(map[string]int, len(items))
	for _, item := range items {
		if item.Type != domain.ItemProduct {
			continue
		}
		if _, seen := requested[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		requested[item.ProductID] += item.Quantity
	}

	deltas := make([]store.StockDelta, 0, len(order))
	for _, productID := range order {
		product, err := inv.repo.GetProduct(ctx, productID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: product %s not found", ErrInvalidItem, productID)
			}
			return nil, err
		}
		qty := requested[productID]
		if product.Stock <= 0 || qty > product.Stock {
			return nil, &InsufficientStockError{ProductID: productID, Available: product.Stock, Requested: qty}
		}
		deltas = append(deltas, store.StockDelta{ProductID: productID, Delta: -qty})
	}
	return deltas, nil
}

// Decrement removes qty units of a product. It re-checks stock itself and is
// safe to call outside of a sale.
func (inv *Inventory) Decrement(ctx context.Context, productID string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: quantity %d", ErrInvalidItem, qty)
	}
	deltas, err := inv.Plan(ctx, []domain.CartItem{{Type: domain.ItemProduct, ProductID: productID, Quantity: qty}})
	if err != nil {
		return err
	}
	return inv.repo.Apply(ctx, store.ChangeSet{StockDeltas: deltas})
}

func (inv *Inventory) Restock(ctx context.Context, productID string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: quantity %d", ErrInvalidItem, qty)
	}
	if _, err := inv.repo.GetProduct(ctx, productID); err != nil {
		return err
	}
	return inv.repo.Apply(ctx, store.ChangeSet{StockDeltas: restockDeltas(productID, qty)})
}

// SetStock records a physical count for a product.
func (inv *Inventory) SetStock(ctx context.Context, productID string, qty int) (*domain.Product, error) {
	before, err := inv.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := inv.repo.SetStock(ctx, productID, qty); err != nil {
		return nil, err
	}
	inv.logger.Info("stock counted",
		zap.String("product_id", productID),
		zap.Int("before", before.Stock),
		zap.Int("after", qty),
	)
	return inv.repo.GetProduct(ctx, productID)
}

func (inv *Inventory) LowStock(ctx context.Context) ([]domain.Product, error) {
	products, err := inv.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	low := make([]domain.Product, 0, 4)
	for _, p := range products {
		if p.Stock <= p.MinStock {
			low = append(low, p)
		}
	}
	return low, nil
}

func restockDeltas(productID string, qty int) []store.StockDelta {
	return []store.StockDelta{{ProductID: productID, Delta: qty}}
}
