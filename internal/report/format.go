package report

import (
	"strconv"
	"strings"
)

// NoData is rendered wherever a metric has no qualifying input.
const NoData = "—"

// FormatKsh renders an amount with comma thousands separators, matching the
// en-US grouping the shop's printed reports use.
func FormatKsh(amount int64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)

	var b strings.Builder
	if negative {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte(',')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
