package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/neopharm/pharmacy/internal/models"
	"github.com/neopharm/pharmacy/internal/service"
	"github.com/neopharm/pharmacy/pkg/logging"
)

// Catalog is satisfied by *service.DrugService.
type Catalog interface {
	List(ctx context.Context, cat models.Category) ([]models.Drug, error)
	Create(ctx context.Context, cat models.Category, in service.DrugInput) (*models.Drug, error)
}

type Result struct {
	Created int
	Skipped int
	Failed  int
}

var requiredColumns = []string{"category", "name"}

// LoadDrugsFile opens path and loads it with LoadDrugs.
func LoadDrugsFile(ctx context.Context, c Catalog, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open drug catalog %s: %w", path, err)
	}
	defer f.Close()
	return LoadDrugs(ctx, c, f)
}

// LoadDrugs reads a CSV catalog with a header row and creates every drug that is
// not already present. A drug is present when its category already holds the
// same name and brand, compared case-insensitively.
//
// Columns: category, name, dosage_form, brand, unit, cost, markup, price, stock, exp_date (YYYY-MM-DD).
// Only category and name are required.
func LoadDrugs(ctx context.Context, c Catalog, r io.Reader) (Result, error) {
	l := logging.FromContext(ctx).With("svc", "seed.drugs")

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return Result{}, fmt.Errorf("read drug catalog header: %w", err)
	}
	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return Result{}, fmt.Errorf("drug catalog is missing the %q column", name)
		}
	}

	existing := map[models.Category]map[string]bool{}
	known := func(cat models.Category) (map[string]bool, error) {
		if m, ok := existing[cat]; ok {
			return m, nil
		}
		list, err := c.List(ctx, cat)
		if err != nil {
			return nil, err
		}
		m := make(map[string]bool, len(list))
		for _, d := range list {
			m[drugKey(d.Name, d.Brand)] = true
		}
		existing[cat] = m
		return m, nil
	}

	var res Result
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			l.Warn("seed_row_unreadable", "line", line, "error", err)
			res.Failed++
			continue
		}
		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		cat, err := models.ParseCategory(field("category"))
		if err != nil {
			l.Warn("seed_row_invalid", "line", line, "error", err)
			res.Failed++
			continue
		}
		in, err := parseRow(field)
		if err != nil {
			l.Warn("seed_row_invalid", "line", line, "error", err)
			res.Failed++
			continue
		}

		seen, err := known(cat)
		if err != nil {
			return res, err
		}
		key := drugKey(in.Name, in.Brand)
		if seen[key] {
			res.Skipped++
			continue
		}
		if _, err := c.Create(ctx, cat, in); err != nil {
			if errors.Is(err, service.ErrValidation) {
				l.Warn("seed_row_invalid", "line", line, "error", err)
				res.Failed++
				continue
			}
			return res, err
		}
		seen[key] = true
		res.Created++
	}

	l.Info("seed_drugs_done", "created", res.Created, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

func parseRow(field func(string) string) (service.DrugInput, error) {
	in := service.DrugInput{
		Name:       field("name"),
		DosageForm: field("dosage_form"),
		Brand:      field("brand"),
		Unit:       field("unit"),
		Cost:       decimal.Zero,
		Price:      decimal.Zero,
	}
	var err error
	if v := field("cost"); v != "" {
		if in.Cost, err = decimal.NewFromString(v); err != nil {
			return in, fmt.Errorf("cost %q: %w", v, err)
		}
	}
	if v := field("price"); v != "" {
		if in.Price, err = decimal.NewFromString(v); err != nil {
			return in, fmt.Errorf("price %q: %w", v, err)
		}
	}
	if v := field("markup"); v != "" {
		if in.Markup, err = strconv.Atoi(v); err != nil {
			return in, fmt.Errorf("markup %q: %w", v, err)
		}
	}
	if v := field("stock"); v != "" {
		if in.Stock, err = strconv.Atoi(v); err != nil {
			return in, fmt.Errorf("stock %q: %w", v, err)
		}
	}
	if v := field("exp_date"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return in, fmt.Errorf("exp_date %q: %w", v, err)
		}
		in.ExpDate = &t
	}
	return in, nil
}

func drugKey(name, brand string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "\x00" + strings.ToLower(strings.TrimSpace(brand))
}
