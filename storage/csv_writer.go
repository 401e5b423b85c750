package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"vendor-desk/models"
)

var csvHeader = []string{
	"order_id", "status", "user_id", "address", "slot", "order_datetime", "completed_at",
	"item_name", "order_type", "price", "quantity",
	"total_price", "total_quantity", "original_total", "final_price", "coupon", "savings",
}

// CSVWriter exports grouped orders, one row per line item.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	closer io.Closer
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	c, err := newCSVWriter(f, f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return c, nil
}

func newCSVWriter(w io.Writer, closer io.Closer) (*CSVWriter, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	cw.Flush()
	return &CSVWriter{closer: closer, writer: cw}, cw.Error()
}

// Export appends every line item of groups.
func (c *CSVWriter) Export(groups []models.OrderGroup) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, g := range groups {
		for _, item := range g.Items {
			row := []string{
				g.OrderID,
				g.Status,
				g.UserID,
				g.Address,
				g.Slot,
				g.OrderDatetime,
				g.CompletedAt,
				item.ItemName,
				item.OrderType,
				money(item.Price),
				strconv.Itoa(item.Quantity),
				money(g.TotalPrice),
				strconv.Itoa(g.TotalQuantity),
				money(g.OriginalTotal),
				money(g.FinalPrice),
				g.Coupon,
				money(g.Savings()),
			}
			if err := c.writer.Write(row); err != nil {
				return fmt.Errorf("csv: write row: %w", err)
			}
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	if c.closer == nil {
		return c.writer.Error()
	}
	return c.closer.Close()
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
