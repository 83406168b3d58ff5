package history

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/stockwatch/stock"
)

func sampleRecords() []Record {
	base := time.Date(2026, 10, 19, 4, 0, 0, 0, time.UTC)
	return []Record{
		{ID: 5, FruitName: "Dragon", Rarity: stock.Mythical, DetectedAt: base.Add(4 * time.Hour)},
		{ID: 4, FruitName: "Spin", Rarity: stock.Uncommon, DetectedAt: base.Add(4 * time.Hour)},
		{ID: 3, FruitName: "Buddha", Rarity: stock.Legendary, DetectedAt: base},
		{ID: 2, FruitName: "Dragon", Rarity: stock.Mythical, DetectedAt: base.Add(-4 * time.Hour)},
		{ID: 1, FruitName: "Kitsune", Rarity: stock.Rare, DetectedAt: base.Add(-8 * time.Hour)},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleRecords(), DefaultDisplayOffset, stock.DefaultHighTiers)

	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 5, s.Shown)
	require.NotNil(t, s.Latest)
	assert.Equal(t, "Dragon", s.Latest.FruitName)
	assert.Equal(t, time.Date(2026, 10, 19, 16, 0, 0, 0, time.UTC), s.Latest.DetectedAt)
	assert.Equal(t, s.Latest.DetectedAt, s.LastUpdate)

	assert.Equal(t, []Count{
		{"Mythical", 2}, {"Legendary", 1}, {"Rare", 1}, {"Uncommon", 1},
	}, s.ByRarity)
	assert.Equal(t, []Count{{"Dragon", 2}, {"Buddha", 1}}, s.TopRare)
}

func TestSummarize_DoesNotMutateInput(t *testing.T) {
	recs := sampleRecords()
	orig := recs[0].DetectedAt
	Summarize(recs, DefaultDisplayOffset, nil)
	assert.Equal(t, orig, recs[0].DetectedAt)
}

func TestWriteReport_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, Summarize(nil, DefaultDisplayOffset, nil)))
	assert.Contains(t, buf.String(), "No sightings recorded yet")
}

func TestSummarize_NormalizesLocation(t *testing.T) {
	instant := time.Date(2026, 3, 14, 1, 0, 0, 0, time.UTC)
	cet := time.FixedZone("CET", 3600)

	asUTC := Summarize([]Record{{FruitName: "Dragon", Rarity: stock.Mythical, DetectedAt: instant}}, DefaultDisplayOffset, nil)
	asCET := Summarize([]Record{{FruitName: "Dragon", Rarity: stock.Mythical, DetectedAt: instant.In(cet)}}, DefaultDisplayOffset, nil)

	want := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, want, asUTC.LastUpdate)
	assert.Equal(t, want, asCET.LastUpdate)

	var a, b bytes.Buffer
	require.NoError(t, WriteReport(&a, asUTC))
	require.NoError(t, WriteReport(&b, asCET))
	assert.Contains(t, b.String(), "2026-03-14 09:00")
	assert.NotContains(t, b.String(), "2026-03-14 10:00")
	assert.Equal(t, a.String(), b.String())
}

func TestWriteReport_LimitedWindow(t *testing.T) {
	s := Summarize(sampleRecords()[:2], DefaultDisplayOffset, stock.DefaultHighTiers)
	s.Total = 40

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, s))
	out := buf.String()
	assert.Contains(t, out, "40")
	assert.Contains(t, out, "Showing the 2 most recent of 40 detections.")
}

func TestWriteReport_FullWindowHasNoNotice(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, Summarize(sampleRecords(), DefaultDisplayOffset, nil)))
	assert.NotContains(t, buf.String(), "most recent of")
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, Summarize(sampleRecords(), DefaultDisplayOffset, stock.DefaultHighTiers)))

	out := buf.String()
	assert.Contains(t, out, "Rarity Distribution")
	assert.Contains(t, out, "Most Frequent Rare Fruits")
	assert.Contains(t, out, "Kitsune")
	assert.Contains(t, out, "2026-10-19 16:00")
	assert.Contains(t, out, "(UTC+8)")
}
