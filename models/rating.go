package models

// RatingEntry is one row of a viewing-history export: a title, its release
// year (4-digit string, may be empty), and the user's rating (0-5 in
// half-point steps). Rows missing a title or a parsable rating never make
// it this far.
type RatingEntry struct {
	Title  string  `json:"title"`
	Year   string  `json:"year,omitempty"`
	Rating float64 `json:"rating"`
}

// Resolution is the outcome of resolving one (title, year) pair.
// An empty Directors slice with Failed=false means the lookup succeeded but
// found nothing; Failed=true means every lookup tier errored. Aggregation
// treats both the same, the distinction exists for logging.
type Resolution struct {
	Directors []string `json:"directors"`
	Failed    bool     `json:"failed,omitempty"`
}

// RankedEntry is one row of the final toplist.
type RankedEntry struct {
	Director string  `json:"director"`
	Avg      float64 `json:"avg"`
	Films    int     `json:"films"`
}

// AnalyzeResponse is the API response for the analyze endpoint.
type AnalyzeResponse struct {
	Toplist []RankedEntry `json:"toplist"`
	Rows    int           `json:"rows"`
}
