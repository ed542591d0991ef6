package rest

import (
	"context"
	"strconv"

	"stockroom/internal/models"

	postgrest "github.com/supabase-community/postgrest-go"
)

const inventoryTable = "inventory"

func (c *Client) ListInventory(ctx context.Context, userID string) ([]models.InventoryItem, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	pg, rec := c.rows(token)
	var items []models.InventoryItem
	_, err = pg.From(inventoryTable).
		Select("*", "", false).
		Eq("user_id", userID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		ExecuteToWithContext(ctx, &items)
	if err != nil {
		return nil, rowError(rec, err)
	}

	if items == nil {
		items = []models.InventoryItem{}
	}
	return items, nil
}

func (c *Client) InsertInventory(ctx context.Context, item models.NewInventoryItem) (*models.InventoryItem, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	pg, rec := c.rows(token)
	var created models.InventoryItem
	_, err = pg.From(inventoryTable).
		Insert([]models.NewInventoryItem{item}, false, "", "representation", "").
		Single().
		ExecuteToWithContext(ctx, &created)
	if err != nil {
		return nil, rowError(rec, err)
	}
	return &created, nil
}

func (c *Client) DeleteInventory(ctx context.Context, id int64) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	pg, rec := c.rows(token)
	_, _, err = pg.From(inventoryTable).
		Delete("minimal", "").
		Eq("id", strconv.FormatInt(id, 10)).
		ExecuteWithContext(ctx)
	if err != nil {
		return rowError(rec, err)
	}
	return nil
}
