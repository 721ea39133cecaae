// Package export renders a user's markers as a CSV download.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/mmynk/girandola/internal/models"
)

// DefaultFilename is the suggested name of the download.
const DefaultFilename = "girandolas_export.csv"

// DateFormat is ISO 8601 in UTC with milliseconds.
const DateFormat = "2006-01-02T15:04:05.000Z"

// ErrNoData is returned for an empty marker list; nothing is written.
var ErrNoData = errors.New("no markers to export")

// Header is the first CSV row.
var Header = []string{"Latitude", "Longitude", "User Email", "Date"}

// WriteCSV writes one row per marker, in the order given, after the header.
func WriteCSV(w io.Writer, markers []models.Marker) error {
	if len(markers) == 0 {
		return ErrNoData
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, m := range markers {
		row := []string{
			strconv.FormatFloat(m.Lat, 'f', -1, 64),
			strconv.FormatFloat(m.Lng, 'f', -1, 64),
			m.OwnerEmail,
			m.CreatedAt.UTC().Format(DateFormat),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write marker %s: %w", m.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
