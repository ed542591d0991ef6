package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"stockroom/internal/models"
)

// ListInventoryItems returns userID's rows, newest first. Ties on
// created_at fall back to insertion order.
func ListInventoryItems(ctx context.Context, db *sql.DB, userID string) ([]models.InventoryItem, error) {
	query := `
		SELECT id, name, user_id, created_at
		FROM inventory
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`

	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory: %w", err)
	}
	defer rows.Close()

	items := []models.InventoryItem{}
	for rows.Next() {
		var item models.InventoryItem
		if err := rows.Scan(&item.ID, &item.Name, &item.UserID, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan inventory item: %w", err)
		}
		items = append(items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating inventory: %w", err)
	}

	return items, nil
}

func GetInventoryItem(ctx context.Context, db *sql.DB, id int64) (*models.InventoryItem, error) {
	item := &models.InventoryItem{}
	query := `SELECT id, name, user_id, created_at FROM inventory WHERE id = ?`

	err := db.QueryRowContext(ctx, query, id).Scan(&item.ID, &item.Name, &item.UserID, &item.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query inventory item: %w", err)
	}

	return item, nil
}

func CreateInventoryItem(ctx context.Context, db *sql.DB, item models.NewInventoryItem) (*models.InventoryItem, error) {
	name := strings.TrimSpace(item.Name)
	if name == "" {
		return nil, fmt.Errorf("failed to create inventory item: name is required")
	}
	if item.UserID == "" {
		return nil, fmt.Errorf("failed to create inventory item: user_id is required")
	}

	createdAt := time.Now().UTC()
	query := `INSERT INTO inventory (name, user_id, created_at) VALUES (?, ?, ?)`

	result, err := db.ExecContext(ctx, query, name, item.UserID, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create inventory item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory item ID: %w", err)
	}

	return &models.InventoryItem{
		ID:        id,
		Name:      name,
		UserID:    item.UserID,
		CreatedAt: createdAt,
	}, nil
}

// DeleteInventoryItem removes the row with id. A non-empty ownerID limits
// the delete to that owner's rows. Deleting nothing is not an error.
func DeleteInventoryItem(ctx context.Context, db *sql.DB, id int64, ownerID string) (int64, error) {
	query := `DELETE FROM inventory WHERE id = ?`
	args := []interface{}{id}
	if ownerID != "" {
		query += ` AND user_id = ?`
		args = append(args, ownerID)
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete inventory item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}
