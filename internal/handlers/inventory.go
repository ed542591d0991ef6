package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"stockroom/internal/database"
	"stockroom/internal/logger"
	"stockroom/internal/middleware"
	"stockroom/internal/models"

	"github.com/gin-gonic/gin"
)

const objectMediaType = "application/vnd.pgrst.object+json"

// rowFilter is the supported subset of PostgREST query parameters.
type rowFilter struct {
	userID    string
	id        int64
	hasID     bool
	orderBy   string
	ascending bool
}

func restError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"code": code, "message": message, "details": nil, "hint": nil})
}

func parseEq(column, value string) (string, error) {
	if !strings.HasPrefix(value, "eq.") {
		return "", fmt.Errorf("unsupported operator for %s: only eq is supported", column)
	}
	return strings.TrimPrefix(value, "eq."), nil
}

func parseRowFilter(query map[string][]string) (*rowFilter, error) {
	f := &rowFilter{orderBy: "created_at"}

	for key, values := range query {
		if len(values) != 1 {
			return nil, fmt.Errorf("duplicate parameter %q", key)
		}
		value := values[0]

		switch key {
		case "select":
			if value != "*" {
				return nil, fmt.Errorf("unsupported select %q", value)
			}
		case "user_id":
			v, err := parseEq(key, value)
			if err != nil {
				return nil, err
			}
			f.userID = v
		case "id":
			v, err := parseEq(key, value)
			if err != nil {
				return nil, err
			}
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid id %q", v)
			}
			f.id, f.hasID = id, true
		case "order":
			column, direction, _ := strings.Cut(value, ".")
			if column != "created_at" && column != "id" {
				return nil, fmt.Errorf("unsupported order column %q", column)
			}
			// Both columns are NOT NULL, so null placement is moot.
			direction, nulls, _ := strings.Cut(direction, ".")
			if nulls != "" && nulls != "nullsfirst" && nulls != "nullslast" {
				return nil, fmt.Errorf("unsupported null ordering %q", nulls)
			}
			switch direction {
			case "desc":
				f.ascending = false
			case "", "asc":
				f.ascending = true
			default:
				return nil, fmt.Errorf("unsupported order direction %q", direction)
			}
			f.orderBy = column
		case "apikey":
		default:
			return nil, fmt.Errorf("unsupported parameter %q", key)
		}
	}

	return f, nil
}

func prefers(c *gin.Context, option string) bool {
	for _, part := range strings.Split(c.GetHeader("Prefer"), ",") {
		if strings.TrimSpace(part) == option {
			return true
		}
	}
	return false
}

// handleListInventory returns the caller's rows only. A user_id filter
// naming someone else yields an empty list, not an error.
func handleListInventory(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	callerID := c.GetString(middleware.ContextUserID)

	filter, err := parseRowFilter(c.Request.URL.Query())
	if err != nil {
		restError(c, http.StatusBadRequest, "PGRST100", err.Error())
		return
	}

	items := []models.InventoryItem{}
	if callerID != "" && (filter.userID == "" || filter.userID == callerID) {
		var err error
		if filter.hasID {
			items, err = visibleItem(c, db, filter.id, callerID)
		} else {
			var rows []models.InventoryItem
			rows, err = database.ListInventoryItems(c.Request.Context(), db, callerID)
			items = append(items, rows...)
		}
		if err != nil {
			logger.Error("Failed to list inventory", "user_id", callerID, "error", err)
			restError(c, http.StatusInternalServerError, "XX000", "failed to list inventory")
			return
		}
	}

	sortItems(items, filter)

	if c.GetHeader("Accept") == objectMediaType {
		if len(items) != 1 {
			restError(c, http.StatusNotAcceptable, "PGRST116",
				fmt.Sprintf("JSON object requested, multiple (or no) rows returned: %d rows", len(items)))
			return
		}
		c.JSON(http.StatusOK, items[0])
		return
	}

	c.JSON(http.StatusOK, items)
}

// visibleItem looks up a single row. Missing rows and rows owned by someone
// else both yield an empty list.
func visibleItem(c *gin.Context, db *sql.DB, id int64, callerID string) ([]models.InventoryItem, error) {
	item, err := database.GetInventoryItem(c.Request.Context(), db, id)
	if errors.Is(err, database.ErrNotFound) {
		return []models.InventoryItem{}, nil
	}
	if err != nil {
		return nil, err
	}
	if item.UserID != callerID {
		return []models.InventoryItem{}, nil
	}
	return []models.InventoryItem{*item}, nil
}

func sortItems(items []models.InventoryItem, f *rowFilter) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if f.orderBy == "id" {
			if f.ascending {
				return a.ID < b.ID
			}
			return a.ID > b.ID
		}
		if a.CreatedAt.Equal(b.CreatedAt) {
			if f.ascending {
				return a.ID < b.ID
			}
			return a.ID > b.ID
		}
		if f.ascending {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

func decodeNewItems(body []byte) ([]models.NewInventoryItem, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty request body")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()

	if trimmed[0] == '[' {
		var items []models.NewInventoryItem
		if err := dec.Decode(&items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var item models.NewInventoryItem
	if err := dec.Decode(&item); err != nil {
		return nil, err
	}
	return []models.NewInventoryItem{item}, nil
}

func handleInsertInventory(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	callerID := c.GetString(middleware.ContextUserID)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		restError(c, http.StatusBadRequest, "PGRST102", "failed to read request body")
		return
	}

	newItems, err := decodeNewItems(body)
	if err != nil {
		restError(c, http.StatusBadRequest, "PGRST102", "invalid request body: "+err.Error())
		return
	}

	for _, item := range newItems {
		if strings.TrimSpace(item.Name) == "" {
			restError(c, http.StatusBadRequest, "23502", `null value in column "name" of relation "inventory" violates not-null constraint`)
			return
		}
		if callerID == "" {
			restError(c, http.StatusUnauthorized, "42501", `new row violates row-level security policy for table "inventory"`)
			return
		}
		if item.UserID != callerID {
			restError(c, http.StatusForbidden, "42501", `new row violates row-level security policy for table "inventory"`)
			return
		}
	}

	created := make([]models.InventoryItem, 0, len(newItems))
	for _, item := range newItems {
		row, err := database.CreateInventoryItem(c.Request.Context(), db, item)
		if err != nil {
			logger.Error("Failed to insert inventory item", "user_id", callerID, "error", err)
			restError(c, http.StatusInternalServerError, "XX000", "failed to insert inventory item")
			return
		}
		created = append(created, *row)
	}

	if !prefers(c, "return=representation") {
		c.Status(http.StatusCreated)
		return
	}

	if c.GetHeader("Accept") == objectMediaType {
		if len(created) != 1 {
			restError(c, http.StatusNotAcceptable, "PGRST116",
				fmt.Sprintf("JSON object requested, multiple (or no) rows returned: %d rows", len(created)))
			return
		}
		c.JSON(http.StatusCreated, created[0])
		return
	}

	c.JSON(http.StatusCreated, created)
}

// handleDeleteInventory only removes the caller's rows and answers 204
// whether or not anything matched.
func handleDeleteInventory(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	callerID := c.GetString(middleware.ContextUserID)

	filter, err := parseRowFilter(c.Request.URL.Query())
	if err != nil {
		restError(c, http.StatusBadRequest, "PGRST100", err.Error())
		return
	}
	if !filter.hasID {
		restError(c, http.StatusBadRequest, "21000", "DELETE requires a WHERE clause")
		return
	}

	if callerID != "" {
		if _, err := database.DeleteInventoryItem(c.Request.Context(), db, filter.id, callerID); err != nil {
			logger.Error("Failed to delete inventory item", "user_id", callerID, "item", filter.id, "error", err)
			restError(c, http.StatusInternalServerError, "XX000", "failed to delete inventory item")
			return
		}
	}

	c.Status(http.StatusNoContent)
}
