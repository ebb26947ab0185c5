package metrics

var TCPLabels = []string{"listen", "connected", "syn", "timewait", "close"}

var tcpBuckets = map[string]int{
	"0A": 0,
	"01": 1,
	"02": 2, "03": 2, "09": 2,
	"06": 3,
	"04": 4, "05": 4, "07": 4, "08": 4, "0B": 4,
}

// TCPStates counts connection table rows per state bucket. The header row and
// rows with an unknown state code fall through without being counted.
func TCPStates(tables ...[][]string) Derived {
	out := make(Derived, len(TCPLabels))
	for _, rows := range tables {
		for _, l := range rows {
			if len(l) < 4 {
				continue
			}
			if i, ok := tcpBuckets[l[3]]; ok {
				out[i]++
			}
		}
	}
	return out
}
