package importer

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/jupark12/go-plot-queue/models"
)

// Decode turns a downloaded file into records based on its extension.
// .zip archives are opened and their first .csv entry is used; .json files
// must hold a list of records; anything else is read as CSV. A file that
// cannot be extracted is a failure of the catalog, reported as ErrDependency.
func Decode(name string, data []byte) ([]models.Record, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".zip":
		return decodeZip(data)
	case ".json":
		records, err := models.DecodeRecords(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", models.ErrDependency, name, err)
		}
		return records, nil
	default:
		return ParseCSV(bytes.NewReader(data))
	}
}

func decodeZip(data []byte) ([]models.Record, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open zip archive: %v", models.ErrDependency, err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.EqualFold(path.Ext(f.Name), ".csv") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %v", models.ErrDependency, f.Name, err)
		}
		defer rc.Close()
		return ParseCSV(rc)
	}
	return nil, fmt.Errorf("%w: zip archive has no .csv file", models.ErrDependency)
}

// ParseCSV reads a CSV with a header row. Numeric cells become numbers, empty
// cells become null and everything else stays a string.
func ParseCSV(r io.Reader) ([]models.Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: csv is empty", models.ErrDependency)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read csv header: %v", models.ErrDependency, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	records := []models.Record{}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read csv: %v", models.ErrDependency, err)
		}
		record := make(models.Record, len(header))
		for i, name := range header {
			record[name] = cellValue(row[i])
		}
		records = append(records, record)
	}
	return records, nil
}

func cellValue(cell string) any {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil
	}
	if _, err := strconv.ParseFloat(cell, 64); err == nil && !isSpecialFloat(cell) {
		return json.Number(cell)
	}
	return cell
}

// isSpecialFloat catches words ParseFloat accepts that JSON cannot carry.
func isSpecialFloat(cell string) bool {
	switch strings.ToLower(strings.TrimLeft(cell, "+-")) {
	case "nan", "inf", "infinity":
		return true
	}
	return strings.HasPrefix(strings.ToLower(cell), "0x")
}
