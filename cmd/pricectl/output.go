package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"

	"github.com/kjannette/stationprice/internal/models"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func parseFormat(s string) (string, error) {
	switch f := strings.ToLower(s); f {
	case formatTable, formatJSON, formatYAML:
		return f, nil
	case "":
		if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
			return formatTable, nil
		}
		return formatJSON, nil
	default:
		return "", fmt.Errorf("invalid format %q: must be one of table, json, yaml", s)
	}
}

type pointRecord struct {
	ID        string     `json:"id" yaml:"id"`
	Lat       float64    `json:"lat" yaml:"lat"`
	Lon       float64    `json:"lon" yaml:"lon"`
	Name      string     `json:"name,omitempty" yaml:"name,omitempty"`
	Brand     string     `json:"brand,omitempty" yaml:"brand,omitempty"`
	Price     *string    `json:"price" yaml:"price"`
	UpdatedAt *time.Time `json:"updatedAt" yaml:"updatedAt"`
}

type viewRecord struct {
	Points     []pointRecord `json:"points" yaml:"points"`
	Partial    bool          `json:"partial" yaml:"partial"`
	Unresolved int           `json:"unresolved" yaml:"unresolved"`
}

type annotationRecord struct {
	ID        string    `json:"id" yaml:"id"`
	Price     string    `json:"price" yaml:"price"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

func viewToRecord(v *models.MergedView) viewRecord {
	rec := viewRecord{
		Points:     make([]pointRecord, len(v.Points)),
		Partial:    v.Partial,
		Unresolved: v.Unresolved,
	}
	for i, p := range v.Points {
		pr := pointRecord{
			ID:    p.POI.ID.String(),
			Lat:   p.POI.Coordinate.Lat,
			Lon:   p.POI.Coordinate.Lon,
			Name:  p.POI.Name,
			Brand: p.POI.Brand,
		}
		if p.Annotation != nil {
			price := p.Annotation.Price.StringFixed(3)
			ts := p.Annotation.UpdatedAt.UTC()
			pr.Price = &price
			pr.UpdatedAt = &ts
		}
		rec.Points[i] = pr
	}
	return rec
}

func printView(w io.Writer, format string, v *models.MergedView) error {
	rec := viewToRecord(v)
	f, err := parseFormat(format)
	if err != nil {
		return err
	}
	if f != formatTable {
		return encode(w, f, rec)
	}

	table := tablewriter.NewTable(w)
	table.Header("ID", "Name", "Brand", "Lat", "Lon", "Price", "Updated")
	for _, p := range rec.Points {
		price, updated := "-", "-"
		if p.Price != nil {
			price = *p.Price
			updated = p.UpdatedAt.Format(time.RFC3339)
		}
		if err := table.Append(
			p.ID, p.Name, p.Brand,
			strconv.FormatFloat(p.Lat, 'f', 5, 64),
			strconv.FormatFloat(p.Lon, 'f', 5, 64),
			price, updated,
		); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	if rec.Partial {
		fmt.Fprintf(w, "partial view: %d point(s) unresolved\n", rec.Unresolved)
	}
	return nil
}

func printAnnotation(w io.Writer, format string, a *models.Annotation) error {
	rec := annotationRecord{
		ID:        a.ID.String(),
		Price:     a.Price.StringFixed(3),
		UpdatedAt: a.UpdatedAt.UTC(),
	}
	f, err := parseFormat(format)
	if err != nil {
		return err
	}
	if f != formatTable {
		return encode(w, f, rec)
	}

	table := tablewriter.NewTable(w)
	table.Header("ID", "Price", "Updated")
	if err := table.Append(rec.ID, rec.Price, rec.UpdatedAt.Format(time.RFC3339)); err != nil {
		return err
	}
	return table.Render()
}

func encode(w io.Writer, format string, data any) error {
	if format == formatYAML {
		out, err := yaml.MarshalWithOptions(data, yaml.Indent(2), yaml.IndentSequence(false))
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
