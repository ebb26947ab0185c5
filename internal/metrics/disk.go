package metrics

// DiskLabels are the per-device fields.
var DiskLabels = []string{"reads", "read_mb", "read_rt", "writes", "write_mb", "write_rt", "ioutil", "iops", "qtime", "stime"}

// IOLabels are the fields of the aggregate "io" pseudo-device.
var IOLabels = []string{"reads", "writes", "queue", "await", "svctm", "util", "read_mb", "write_mb"}

// DiskCounters is the number of counters per /proc/diskstats device line.
const DiskCounters = 11

// Positions in a diskstats Raw tuple.
const (
	diskReads = iota
	diskReadsMerged
	diskSectorsRead
	diskMsReading
	diskWrites
	diskWritesMerged
	diskSectorsWritten
	diskMsWriting
	diskInProgress
	diskMsIO
	diskWeightedMsIO
)

// ParseDisks returns the 11 counters for every wanted device plus their sum.
// Devices missing from the counter source are absent from the map.
func ParseDisks(lines [][]string, wanted []string) (Raw, map[string]Raw) {
	want := make(map[string]struct{}, len(wanted))
	for _, w := range wanted {
		want[w] = struct{}{}
	}
	total := make(Raw, DiskCounters)
	devices := make(map[string]Raw, len(wanted))
	for _, l := range lines {
		if len(l) < 3+DiskCounters {
			continue
		}
		name := l[2]
		if _, ok := want[name]; !ok {
			continue
		}
		if _, dup := devices[name]; dup {
			continue
		}
		raw := make(Raw, DiskCounters)
		for i := range raw {
			raw[i] = parseUint(l[i+3])
			total[i] += raw[i]
		}
		devices[name] = raw
	}
	return total, devices
}

// DiskRates holds the derived values for one device or the aggregate.
// Times are in milliseconds, throughput in MB/s.
type DiskRates struct {
	Reads   float64
	Writes  float64
	ReadMB  float64
	WriteMB float64
	ReadRT  float64
	WriteRT float64
	Util    float64
	IOPS    float64
	Queue   float64
	STime   float64
	TTime   float64
	QTime   float64
}

// Disk derives utilisation, throughput and latency from two diskstats tuples.
// Queue is the in-flight gauge and is reported even without a baseline.
func Disk(curr, prev Raw, elapsed float64) DiskRates {
	var r DiskRates
	if len(curr) != DiskCounters {
		return r
	}
	r.Queue = float64(curr[diskInProgress])
	if !hasBaseline(curr, prev, elapsed) {
		return r
	}

	d := func(i int) float64 { return delta(curr[i], prev[i]) }
	rd, rdMerged := d(diskReads), d(diskReadsMerged)
	wr, wrMerged := d(diskWrites), d(diskWritesMerged)
	ioMs, weightedMs := d(diskMsIO), d(diskWeightedMsIO)
	ops := rd + rdMerged + wr + wrMerged

	r.Reads = perSecond(rd, elapsed)
	r.Writes = perSecond(wr, elapsed)
	r.ReadMB = perSecond(d(diskSectorsRead)/2/1024, elapsed)
	r.WriteMB = perSecond(d(diskSectorsWritten)/2/1024, elapsed)
	r.ReadRT = ratio(d(diskMsReading), rd+rdMerged)
	r.WriteRT = ratio(d(diskMsWriting), wr+wrMerged)
	r.Util = perSecond(100*ioMs/1000, elapsed)
	r.IOPS = perSecond(rd+wr, elapsed)
	r.STime = ratio(ioMs, ops)
	r.TTime = ratio(weightedMs, ops+r.Queue)
	r.QTime = r.TTime - r.STime
	return r
}

// Device orders the rates as DiskLabels.
func (r DiskRates) Device() Derived {
	return Derived{r.Reads, r.ReadMB, r.ReadRT, r.Writes, r.WriteMB, r.WriteRT, r.Util, r.IOPS, r.QTime, r.STime}
}

// Aggregate orders the rates as IOLabels.
func (r DiskRates) Aggregate() Derived {
	return Derived{r.Reads, r.Writes, r.Queue, r.TTime, r.STime, r.Util, r.ReadMB, r.WriteMB}
}
