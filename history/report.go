package history

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/hazyhaar/stockwatch/stock"
)

// DefaultDisplayOffset shifts stored UTC timestamps to the operators' local
// time for display.
const DefaultDisplayOffset = 8 * time.Hour

// Count is one bar of a distribution.
type Count struct {
	Label string
	N     int
}

// Summary is the aggregate view of the sighting log.
type Summary struct {
	// Total is the size of the whole log. Shown is the number of records
	// summarized, smaller than Total when the read was limited.
	Total        int
	Shown        int
	Latest       *Record
	LastUpdate   time.Time
	ByRarity     []Count
	TopRare      []Count
	Records      []Record // newest first, display offset applied
	DisplayShift time.Duration
}

// Summarize builds the aggregates from records ordered newest first.
// Timestamps are normalized to UTC and shifted by offset; highTiers selects
// the "rare" chart. Total defaults to len(records); callers reading a
// limited window set it from Store.Count.
func Summarize(records []Record, offset time.Duration, highTiers []stock.Rarity) Summary {
	s := Summary{Total: len(records), Shown: len(records), DisplayShift: offset}
	if len(records) == 0 {
		return s
	}

	s.Records = make([]Record, len(records))
	byRarity := map[string]int{}
	rare := map[string]int{}
	for i, r := range records {
		r.DetectedAt = r.DetectedAt.UTC().Add(offset)
		s.Records[i] = r
		byRarity[string(r.Rarity)]++
		if slices.Contains(highTiers, r.Rarity) {
			rare[r.FruitName]++
		}
		if r.DetectedAt.After(s.LastUpdate) {
			s.LastUpdate = r.DetectedAt
		}
	}
	s.Latest = &s.Records[0]
	s.ByRarity = sortedCounts(byRarity)
	s.TopRare = sortedCounts(rare)
	return s
}

// sortedCounts orders by count descending, then label.
func sortedCounts(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for k, v := range m {
		out = append(out, Count{Label: k, N: v})
	}
	slices.SortFunc(out, func(a, b Count) int {
		if c := cmp.Compare(b.N, a.N); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})
	return out
}

const timeLayout = "2006-01-02 15:04"

// WriteReport renders the summary as text tables. An empty log renders an
// explicit no-data notice instead of empty tables.
func WriteReport(w io.Writer, s Summary) error {
	if s.Shown == 0 {
		_, err := fmt.Fprintln(w, "No sightings recorded yet. Run `stockwatch run` to start collecting data.")
		return err
	}

	overview := table.NewWriter()
	overview.SetOutputMirror(w)
	overview.SetTitle("Stock Intelligence")
	overview.AppendHeader(table.Row{"Total Detections", "Latest Stock", "Last Update"})
	overview.AppendRow(table.Row{s.Total, s.Latest.FruitName, s.Latest.DetectedAt.Format(timeLayout)})
	overview.SetStyle(table.StyleLight)
	overview.Render()
	if s.Shown < s.Total {
		fmt.Fprintf(w, "Showing the %d most recent of %d detections.\n", s.Shown, s.Total)
	}

	writeCounts(w, "Rarity Distribution", "Rarity", s.ByRarity)
	if len(s.TopRare) > 0 {
		writeCounts(w, "Most Frequent Rare Fruits", "Fruit", s.TopRare)
	}

	log := table.NewWriter()
	log.SetOutputMirror(w)
	log.SetTitle("Detection History")
	log.AppendHeader(table.Row{"Fruit", "Rarity", "Detected"})
	for _, r := range s.Records {
		log.AppendRow(table.Row{r.FruitName, string(r.Rarity), r.DetectedAt.Format(timeLayout)})
	}
	log.SetStyle(table.StyleLight)
	log.Render()

	_, err := fmt.Fprintf(w, "Last Updated: %s (UTC%+d)\n",
		s.LastUpdate.Format("2006-01-02 15:04:05"), int(s.DisplayShift.Hours()))
	return err
}

func writeCounts(w io.Writer, title, label string, counts []Count) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.AppendHeader(table.Row{label, "Count"})
	for _, c := range counts {
		t.AppendRow(table.Row{c.Label, c.N})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}
