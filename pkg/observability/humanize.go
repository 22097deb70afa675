package observability

import "github.com/dustin/go-humanize"

// FormatBytes renders a byte count the way transport-core log lines report
// window/throughput figures to a human reader, in SI units: the 128 KiB
// transmit window (131072 bytes) renders as "131 kB".
func FormatBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.Bytes(uint64(-n))
	}
	return humanize.Bytes(uint64(n))
}
