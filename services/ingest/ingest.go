package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"auteur/models"
)

// ratingsFileName is the archive member a full account export stores the
// ratings table under.
const ratingsFileName = "ratings.csv"

// ErrNoRatings means the bundle held no parsable ratings table at all.
// Individual bad rows are dropped silently, this is only for a bundle that
// yields nothing to work with.
var ErrNoRatings = errors.New("no ratings data found in bundle")

// Rows extracts rating rows from an opaque user-supplied bundle: either a
// zip export containing ratings.csv or a bare delimited-text file. Rows
// missing a title or carrying an unparsable rating are dropped before they
// reach the resolution pipeline.
func Rows(data []byte) ([]models.RatingEntry, error) {
	if len(data) == 0 {
		return nil, ErrNoRatings
	}
	if mimetype.Detect(data).Is("application/zip") {
		return rowsFromZip(data)
	}
	return parseRows(bytes.NewReader(data))
}

func rowsFromZip(data []byte) ([]models.RatingEntry, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip bundle: %w", err)
	}
	for _, f := range zr.File {
		if !strings.EqualFold(path.Base(f.Name), ratingsFileName) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s in bundle: %w", f.Name, err)
		}
		defer rc.Close()
		log.Printf("[ingest] found ratings table in bundle member=%q", f.Name)
		return parseRows(rc)
	}
	return nil, ErrNoRatings
}

func parseRows(r io.Reader) ([]models.RatingEntry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, ErrNoRatings
	}

	titleIdx, yearIdx, ratingIdx := -1, -1, -1
	for i, col := range header {
		col = strings.TrimPrefix(col, "\ufeff")
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "name", "title":
			titleIdx = i
		case "year":
			yearIdx = i
		case "rating":
			ratingIdx = i
		}
	}
	if titleIdx < 0 || ratingIdx < 0 {
		return nil, fmt.Errorf("ratings header missing title/rating columns: %v", header)
	}

	var rows []models.RatingEntry
	dropped := 0
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			dropped++
			continue
		}
		if titleIdx >= len(rec) || ratingIdx >= len(rec) {
			dropped++
			continue
		}
		title := strings.TrimSpace(rec[titleIdx])
		rating, ratingErr := strconv.ParseFloat(strings.TrimSpace(rec[ratingIdx]), 64)
		if title == "" || ratingErr != nil {
			dropped++
			continue
		}
		year := ""
		if yearIdx >= 0 && yearIdx < len(rec) {
			year = strings.TrimSpace(rec[yearIdx])
		}
		rows = append(rows, models.RatingEntry{Title: title, Year: year, Rating: rating})
	}
	if dropped > 0 {
		log.Printf("[ingest] dropped %d invalid rows", dropped)
	}
	if len(rows) == 0 {
		return nil, ErrNoRatings
	}
	return rows, nil
}
