package catalog

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	ex "capm/data/extensions"
)

// Fallback is served when the component table cannot be read
var Fallback = []string{"AAPL", "MSFT", "TSLA", "GOOG", "AMZN", "NVDA", "META"}

// LoadFromHTML reads the first column of the first table. Header rows (no td cells) are skipped.
func LoadFromHTML(reader io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("error parsing ticker table: %w", err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("no table found in ticker document")
	}

	var tickers []string
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		cell := row.Find("td").First()
		if cell.Length() == 0 {
			return
		}
		tickers = append(tickers, cell.Text())
	})

	res := Normalize(tickers)
	if len(res) == 0 {
		return nil, fmt.Errorf("ticker table has no rows")
	}

	return res, nil
}

// LoadFromFile never fails, any problem reading path falls back to the default list
func LoadFromFile(path string) []string {
	if path == "" {
		return Default()
	}

	f, err := os.Open(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("error opening ticker file, using fallback tickers")
		return Default()
	}
	defer f.Close()

	res, err := LoadFromHTML(f)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("error loading tickers, using fallback tickers")
		return Default()
	}

	log.Info().Str("path", path).Int("tickers", len(res)).Msg("loaded ticker catalog")
	return res
}

func Default() []string {
	return append([]string(nil), Fallback...)
}

// Normalize trims and upper cases symbols, dropping blanks and repeats
func Normalize(tickers []string) []string {
	res := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		res = append(res, t)
	}
	return ex.Unique(res)
}
