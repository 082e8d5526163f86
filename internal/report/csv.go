// Package report exports search results as CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/guarzo/cardpulse/internal/model"
)

var (
	groupHeaders = []string{
		"group_id", "label", "grade", "count", "average_price", "min_price", "max_price",
		"representative_title", "image_url",
	}
	listingHeaders = []string{
		"group_id", "title", "price", "shipping", "total", "sold_date", "date_estimated",
		"condition", "status", "url", "image_url",
	}
)

// WriteGroups writes one row per variant group.
func WriteGroups(w io.Writer, groups []model.VariantGroup) error {
	rows := make([][]string, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, []string{
			g.ID,
			g.Label,
			g.Grade,
			strconv.Itoa(g.Count),
			money(g.AveragePrice),
			money(g.MinPrice),
			money(g.MaxPrice),
			g.RepresentativeTitle,
			g.ImageURL,
		})
	}
	return writeAll(w, groupHeaders, rows)
}

// WriteListings writes every member of every group, tagged with its group.
func WriteListings(w io.Writer, groups []model.VariantGroup) error {
	var rows [][]string
	for _, g := range groups {
		for _, l := range g.Members {
			rows = append(rows, []string{
				g.ID,
				l.Title,
				l.Price.StringFixed(2),
				l.Shipping.StringFixed(2),
				l.TotalPrice().StringFixed(2),
				soldDate(l.SoldDate),
				strconv.FormatBool(l.DateIsEstimated),
				l.Condition,
				string(l.Status),
				l.SourceURL,
				l.ImageURL,
			})
		}
	}
	return writeAll(w, listingHeaders, rows)
}

// WriteFiles writes groups.csv and listings.csv under dir, creating it if
// needed.
func WriteFiles(dir string, groups []model.VariantGroup) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("csv: create output dir: %w", err)
	}
	if err := writeFile(filepath.Join(dir, "groups.csv"), groups, WriteGroups); err != nil {
		return err
	}
	return writeFile(filepath.Join(dir, "listings.csv"), groups, WriteListings)
}

func writeFile(path string, groups []model.VariantGroup, write func(io.Writer, []model.VariantGroup) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csv: create %q: %w", path, err)
	}
	if err := write(f, groups); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeAll(w io.Writer, headers []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(EscapeCSVRow(row)); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func soldDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
