package document

import (
	"fmt"
	"strconv"

	"github.com/antchfx/xmlquery"

	"shepherd/pkg/chart"
)

// thermalRiskCutoff: summed thermal hits above this are reported as zero.
const thermalRiskCutoff = 0.01

// RiskSums adds up the LEAK_ITEM value of every LEAK_ROW for each risk
// column, in chart.RiskColumns order. A building without RESULTS sums to 0.
func RiskSums(b Building) ([]float64, error) {
	out := make([]float64, len(chart.RiskColumns))
	if b.Node == nil {
		return out, nil
	}
	results := xmlquery.FindOne(b.Node, ".//RESULTS")
	if results == nil {
		return out, nil
	}
	for i, col := range chart.RiskColumns {
		rows, err := xmlquery.QueryAll(results, fmt.Sprintf(".//%s/LEAK_ROW", col.Name))
		if err != nil {
			return nil, err
		}
		item := fmt.Sprintf("LEAK_ITEM[%d]", col.ItemIndex)
		sum := 0.0
		for _, row := range rows {
			raw, ok := text(row, item)
			if !ok {
				return nil, fmt.Errorf("building %q: %s row has no %s", b.Name, col.Name, item)
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("building %q: %s %s: %w", b.Name, col.Name, item, err)
			}
			sum += v
		}
		if col.Name == "THERMAL_HITS" && sum > thermalRiskCutoff {
			sum = 0
		}
		out[i] = sum
	}
	return out, nil
}
