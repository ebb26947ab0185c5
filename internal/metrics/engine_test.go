package metrics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fields(text string) [][]string {
	var out [][]string
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.ReplaceAll(line, ":", " ")
		if f := strings.Fields(line); len(f) > 0 {
			out = append(out, f)
		}
	}
	return out
}

func TestParseCPU(t *testing.T) {
	raw, ok := ParseCPU(fields(`
cpu  1000 50 200 8000 50 7 3 0 10 5
cpu0 500 25 100 4000 25 3 1 0 5 2
intr 12345
`))

	require.True(t, ok)
	assert.Equal(t, Raw{1000 + 50 + 10 + 5, 200, 8000, 50, 0}, raw)
}

func TestParseCPUWithoutGuestColumns(t *testing.T) {
	raw, ok := ParseCPU(fields("cpu 10 1 2 30 4 0 0 6"))

	require.True(t, ok)
	assert.Equal(t, Raw{11, 2, 30, 4, 6}, raw)

	_, ok = ParseCPU(fields("cpu 10 1 2"))
	assert.False(t, ok)
}

func TestCPUPercentScenario(t *testing.T) {
	prev := Raw{1000, 200, 8000, 50, 0}
	curr := Raw{1100, 220, 8600, 60, 0}

	got := Format(CPULabels, CPUPercent(curr, prev))

	assert.Equal(t, Stats{"user": 13.70, "sys": 2.74, "idle": 82.19, "iowait": 1.37}, got)
}

func TestCPUPercentClosure(t *testing.T) {
	prev := Raw{5000, 1000, 90000, 300, 40}
	curr := Raw{5371, 1093, 90757, 317, 61}

	pct := CPUPercent(curr, prev)

	var sum float64
	for _, v := range pct {
		sum += v
	}
	assert.InDelta(t, 100, sum, 0.01)
	assert.Greater(t, pct[4], 0.0)
}

func TestCPUPercentGuards(t *testing.T) {
	curr := Raw{100, 10, 1000, 5, 0}

	assert.Equal(t, Derived{0, 0, 0, 0, 0}, CPUPercent(curr, nil), "bootstrap")
	assert.Equal(t, Derived{0, 0, 0, 0, 0}, CPUPercent(curr, curr), "no ticks")
	assert.Equal(t, Derived{0, 0, 0, 0, 0}, CPUPercent(curr, Raw{200, 20, 2000, 10, 0}), "counter reset")
}

func TestMemory(t *testing.T) {
	raw, ok := ParseMem(fields(`
MemTotal:       16384000 kB
MemFree:         4096000 kB
MemAvailable:    9000000 kB
Buffers:         1024000 kB
Cached:          2048000 kB
SwapCached:            0 kB
SwapTotal:       2048000 kB
SwapFree:        1024000 kB
Shmem:            512000 kB
SReclaimable:     256000 kB
`))
	require.True(t, ok)

	got := Memory(raw)

	assert.InDelta(t, (16384000.0-4096000-1024000-2048000-256000+512000)/1024, got[0], 1e-9)
	assert.Equal(t, Stats{"used": 9250, "free": 4000, "buffer": 1000, "cache": 2000}, Format(MemLabels, got))
	assert.Equal(t, 1000.0, got[4])
	assert.Equal(t, 1000.0, got[5])
}

func TestParseMemMissing(t *testing.T) {
	_, ok := ParseMem(fields("Nothing 1 kB"))
	assert.False(t, ok)
}

func TestVMRates(t *testing.T) {
	prev, ok := ParseVM(fields("pgpgin 100\npgpgout 200\npswpin 0\npswpout 0\npgfault 1000\npgmajfault 10\nnr_free_pages 5"))
	require.True(t, ok)
	curr := Raw{300, 400, 10, 20, 3000, 30}

	assert.Equal(t, Derived{20, 20, 1, 2, 200, 2}, VMRates(curr, prev, 10))
	assert.Equal(t, Derived{10, 10, 0.5, 1, 100, 1}, VMRates(curr, prev, 20))
	assert.Equal(t, Derived{0, 0, 0, 0, 0, 0}, VMRates(curr, nil, 10))
	assert.Equal(t, Derived{0, 0, 0, 0, 0, 0}, VMRates(curr, prev, 0))
}

func TestSysRates(t *testing.T) {
	prev, ok := ParseSys(fields(`
cpu 1 2 3 4 5 6 7 8
intr 10000 1 2 3
ctxt 50000
btime 1700000000
processes 2000
procs_running 3
procs_blocked 1
softirq 7000 1 2
`))
	require.True(t, ok)
	assert.Equal(t, Raw{2000, 3, 1, 10000, 50000, 7000}, prev)

	curr := Raw{2050, 5, 0, 12000, 60000, 7500}
	got := Format(SysLabels, SysRates(curr, prev, 10))

	assert.Equal(t, Stats{"new": 5, "running": 5, "block": 0, "intr": 200, "ctx": 1000, "softirq": 50}, got)

	boot := Format(SysLabels, SysRates(curr, nil, 10))
	assert.Equal(t, Stats{"new": 0, "running": 5, "block": 0, "intr": 0, "ctx": 0, "softirq": 0}, boot)
}

func TestTCPStatesBucketCompleteness(t *testing.T) {
	table := func(text string) [][]string {
		var out [][]string
		for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
			out = append(out, strings.Fields(line))
		}
		return out
	}
	tcp := table(`
  sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt
   0: 00000000:0016 00000000:0000 0A 00000000:00000000 00:00000000 00000000
   1: 0100007F:0CEA 0100007F:9C40 01 00000000:00000000 00:00000000 00000000
   2: 0100007F:0CEB 0100007F:9C41 02 00000000:00000000 00:00000000 00000000
   3: 0100007F:0CEC 0100007F:9C42 06 00000000:00000000 00:00000000 00000000
`)
	tcp6 := table(`
  sl  local_address                         remote_address                        st tx_queue rx_queue
   0: 00000000000000000000000000000000:0016 00000000000000000000000000000000:0000 08 00000000:00000000
   1: 00000000000000000000000000000000:0017 00000000000000000000000000000000:0000 FF 00000000:00000000
`)

	got := TCPStates(tcp, tcp6)

	assert.Equal(t, Derived{1, 1, 1, 1, 1}, got)
	var sum float64
	for _, v := range got {
		sum += v
	}
	assert.Equal(t, 5.0, sum)
	assert.Equal(t, Stats{"listen": 1, "connected": 1, "syn": 1, "timewait": 1, "close": 1}, Format(TCPLabels, got))
}

func TestTCPStatesAllCodes(t *testing.T) {
	var rows [][]string
	for _, code := range []string{"0A", "01", "02", "03", "09", "06", "04", "05", "07", "08", "0B", "0C", "zz"} {
		rows = append(rows, []string{"0:", "local", "remote", code})
	}

	assert.Equal(t, Derived{1, 1, 3, 1, 5}, TCPStates(rows))
}

func TestParseNet(t *testing.T) {
	lines := fields(`
Inter-|   Receive                                                |  Transmit
 face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets errs drop fifo colls carrier compressed
    lo: 500 5 0 0 0 0 0 0 500 5 0 0 0 0 0 0
  eth0: 2048000 100 0 0 0 0 0 0 1024000 80 0 0 0 0 0 0
  eth1: 10 1 0 0 0
`)

	order, raws := ParseNet(lines, []string{"eth0", "eth1"})

	assert.Equal(t, []string{"eth0"}, order)
	assert.Equal(t, Raw{2048000, 1024000}, raws["eth0"])
}

func TestNetRates(t *testing.T) {
	prev := Raw{1024000, 512000}
	curr := Raw{1024000 + 102400, 512000 + 20480}

	assert.Equal(t, Derived{10, 2}, NetRates(curr, prev, 10))
	assert.Equal(t, Derived{5, 1}, NetRates(curr, prev, 20))
	assert.Equal(t, Derived{0, 0}, NetRates(curr, nil, 10), "bootstrap")
	assert.Equal(t, Derived{0, 0}, NetRates(curr, curr, 10), "idle")
	assert.Equal(t, Derived{0, 0}, NetRates(prev, curr, 10), "counter reset")
}

func TestParseDisks(t *testing.T) {
	lines := fields(`
   8       0 sda 100 10 2000 50 200 20 4000 80 1 120 150
   8       1 sda1 90 10 1800 45 190 20 3800 75 0 110 140
   8      16 sdb 10 0 200 5 20 0 400 8 0 12 15
   7       0 loop0 1 0 2 0 0 0 0 0 0 0 0
 253       0 dm-0 5 5
`)

	total, devices := ParseDisks(lines, []string{"sda", "sdb", "dm-0"})

	require.Len(t, devices, 2)
	assert.Equal(t, Raw{100, 10, 2000, 50, 200, 20, 4000, 80, 1, 120, 150}, devices["sda"])
	assert.Equal(t, Raw{110, 10, 2200, 55, 220, 20, 4400, 88, 1, 132, 165}, total)
}

func TestDiskFormulas(t *testing.T) {
	prev := Raw{1000, 100, 20000, 500, 2000, 200, 40000, 1000, 0, 3000, 6000}
	curr := Raw{1100, 120, 22048, 740, 2200, 230, 44096, 1460, 2, 4000, 8000}

	r := Disk(curr, prev, 10)

	assert.InDelta(t, 10, r.Reads, 1e-9)
	assert.InDelta(t, 20, r.Writes, 1e-9)
	assert.InDelta(t, 0.1, r.ReadMB, 1e-9)
	assert.InDelta(t, 0.2, r.WriteMB, 1e-9)
	assert.InDelta(t, 240.0/120, r.ReadRT, 1e-9)
	assert.InDelta(t, 460.0/230, r.WriteRT, 1e-9)
	assert.InDelta(t, 10, r.Util, 1e-9)
	assert.InDelta(t, 30, r.IOPS, 1e-9)
	assert.InDelta(t, 1000.0/350, r.STime, 1e-9)
	assert.InDelta(t, 2000.0/352, r.TTime, 1e-9)
	assert.InDelta(t, 2000.0/352-1000.0/350, r.QTime, 1e-9)
	assert.Equal(t, 2.0, r.Queue)

	dev := Format(DiskLabels, r.Device())
	assert.Len(t, dev, len(DiskLabels))
	assert.Equal(t, 10.0, dev["ioutil"])
	assert.Equal(t, 2.86, dev["stime"])

	agg := Format(IOLabels, r.Aggregate())
	assert.Equal(t, Stats{"reads": 10, "writes": 20, "queue": 2, "await": 5.68, "svctm": 2.86, "util": 10, "read_mb": 0.1, "write_mb": 0.2}, agg)
}

func TestDiskElapsedInvariance(t *testing.T) {
	prev := Raw{1000, 100, 20000, 500, 2000, 200, 40000, 1000, 0, 3000, 6000}
	curr := Raw{1100, 120, 22048, 740, 2200, 230, 44096, 1460, 0, 4000, 8000}

	short := Disk(curr, prev, 5)
	long := Disk(curr, prev, 10)

	assert.InDelta(t, short.Reads/2, long.Reads, 1e-9)
	assert.InDelta(t, short.Writes/2, long.Writes, 1e-9)
	assert.InDelta(t, short.ReadMB/2, long.ReadMB, 1e-9)
	assert.InDelta(t, short.WriteMB/2, long.WriteMB, 1e-9)
	assert.InDelta(t, short.Util/2, long.Util, 1e-9)
	assert.InDelta(t, short.IOPS/2, long.IOPS, 1e-9)
}

func TestDiskZeroGuard(t *testing.T) {
	same := Raw{1000, 100, 20000, 500, 2000, 200, 40000, 1000, 0, 3000, 6000}

	idle := Disk(same, same, 10)
	assert.Equal(t, DiskRates{}, idle)

	boot := Disk(Raw{1, 2, 3, 4, 5, 6, 7, 8, 3, 10, 11}, nil, 10)
	assert.Equal(t, DiskRates{Queue: 3}, boot)

	noTime := Disk(same, same, 0)
	assert.Equal(t, DiskRates{}, noTime)

	assert.Equal(t, DiskRates{}, Disk(Raw{1, 2}, nil, 10))
}

func TestParseLoadAndUptime(t *testing.T) {
	load, ok := ParseLoad(fields("0.52 0.58 0.59 2/1234 56789"))
	require.True(t, ok)
	assert.Equal(t, Stats{"load1": 0.52, "load5": 0.58, "load15": 0.59}, Format(LoadLabels, load))

	up, ok := ParseUptime(fields("350735.47 234388.90"))
	require.True(t, ok)
	assert.Equal(t, 350735.47, up)

	_, ok = ParseLoad(fields("x y z"))
	assert.False(t, ok)
	_, ok = ParseUptime(fields("12"))
	assert.False(t, ok)
}
