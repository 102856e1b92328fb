package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mohitjoer/customer-support-voice-agent/internal/models"
	"github.com/mohitjoer/customer-support-voice-agent/internal/util"
)

type orderRow struct {
	OrderID  string `db:"order_id"`
	Document []byte `db:"document"`
}

// Get retrieves an order by canonical key
func (s *Store) Get(ctx context.Context, key string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "Store.Get")
	defer span.End()

	if key == "" {
		return nil, ErrOrderNotFound
	}

	var row orderRow
	err := s.db.GetContext(ctx, &row, "SELECT order_id, document FROM orders WHERE order_id = $1", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", key, err)
	}

	return decodeOrder(row)
}

// Update loads the order under a row lock, applies mutate and writes the document back
func (s *Store) Update(ctx context.Context, key string, mutate Mutator) error {
	ctx, span := util.StartSpan(ctx, "Store.Update")
	defer span.End()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var row orderRow
	err = tx.GetContext(ctx, &row,
		"SELECT order_id, document FROM orders WHERE order_id = $1 FOR UPDATE", key)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock order %s: %w", key, err)
	}

	order, err := decodeOrder(row)
	if err != nil {
		return err
	}

	if err := mutate(order); err != nil {
		return err
	}
	// the key never changes, whatever the mutator did
	order.OrderID = row.OrderID

	doc, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to encode order %s: %w", key, err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE orders SET document = $1, updated_at = NOW() WHERE order_id = $2",
		doc, key); err != nil {
		return fmt.Errorf("failed to update order %s: %w", key, err)
	}

	return tx.Commit()
}

// Seed upserts the given orders, keyed by their order id
func (s *Store) Seed(ctx context.Context, orders []models.Order) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range orders {
		doc, err := json.Marshal(&orders[i])
		if err != nil {
			return fmt.Errorf("failed to encode order %s: %w", orders[i].OrderID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO orders (order_id, document)
			VALUES ($1, $2)
			ON CONFLICT (order_id) DO UPDATE SET document = EXCLUDED.document, updated_at = NOW()`,
			orders[i].OrderID, doc)
		if err != nil {
			return fmt.Errorf("failed to seed order %s: %w", orders[i].OrderID, err)
		}
	}

	return tx.Commit()
}

func decodeOrder(row orderRow) (*models.Order, error) {
	var order models.Order
	if err := json.Unmarshal(row.Document, &order); err != nil {
		return nil, fmt.Errorf("failed to decode order %s: %w", row.OrderID, err)
	}
	order.OrderID = row.OrderID
	return &order, nil
}
