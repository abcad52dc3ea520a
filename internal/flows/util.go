package flows

import (
	"strconv"
	"strings"

	"github.com/MrEthical07/goGuard/risk"
)

func itoa(n int) string {
	return strconv.Itoa(n)
}

func joinSignals(signals []risk.Signal) string {
	parts := make([]string, len(signals))
	for i, s := range signals {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}
