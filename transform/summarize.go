package transform

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/phoenix-network/phoenix-pipeline/models"
)

// Summarize groups enriched swaps by pair key and computes one
// PairSummary row per pair, covering this run's swaps only. Rows are
// sorted by totalUSD descending with ties broken by pairKey ascending
// so output is reproducible. topN > 0 caps the number of rows.
func Summarize(enriched []models.EnrichedSwap, topN int) []models.PairSummary {
	if len(enriched) == 0 {
		return nil
	}

	totals := make(map[string]*models.PairSummary)
	for _, swap := range enriched {
		row, ok := totals[swap.PairKey]
		if !ok {
			row = &models.PairSummary{PairKey: swap.PairKey}
			totals[swap.PairKey] = row
		}
		row.Count++
		row.TotalUSD = row.TotalUSD.Add(swap.USDVolume)
	}

	rows := make([]models.PairSummary, 0, len(totals))
	for _, row := range totals {
		row.TotalUSD = row.TotalUSD.Round(2)
		row.AvgUSD = row.TotalUSD.Div(decimal.NewFromInt(int64(row.Count))).Round(2)
		rows = append(rows, *row)
	}

	sort.Slice(rows, func(i, j int) bool {
		cmp := rows[i].TotalUSD.Cmp(rows[j].TotalUSD)
		if cmp != 0 {
			return cmp > 0
		}
		return rows[i].PairKey < rows[j].PairKey
	})

	if topN > 0 && len(rows) > topN {
		rows = rows[:topN]
	}

	return rows
}
