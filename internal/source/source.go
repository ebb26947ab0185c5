// Package source fetches raw kernel counter text from the monitored host.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Family names one logical kernel counter stream.
type Family string

const (
	FamilyCPU    Family = "cpu"
	FamilySys    Family = "sys"
	FamilyMem    Family = "mem"
	FamilyVM     Family = "vm"
	FamilyIO     Family = "io"
	FamilyNet    Family = "net"
	FamilyTCP    Family = "tcp"
	FamilyTCP6   Family = "tcp6"
	FamilyLoad   Family = "load"
	FamilyUptime Family = "uptime"
	FamilyMounts Family = "mounts"
)

// BlockDir is the directory whose entries are the host's block devices.
const BlockDir = "/sys/block"

var paths = map[Family]string{
	FamilyCPU:    "/proc/stat",
	FamilySys:    "/proc/stat",
	FamilyMem:    "/proc/meminfo",
	FamilyVM:     "/proc/vmstat",
	FamilyIO:     "/proc/diskstats",
	FamilyNet:    "/proc/net/dev",
	FamilyTCP:    "/proc/net/tcp",
	FamilyTCP6:   "/proc/net/tcp6",
	FamilyLoad:   "/proc/loadavg",
	FamilyUptime: "/proc/uptime",
	FamilyMounts: "/etc/mtab",
}

var (
	ErrUnknownFamily = errors.New("source: unknown family")
	ErrNoData        = errors.New("source: no data")
)

// Path returns the file backing the family on a Linux host.
func (f Family) Path() (string, error) {
	p, ok := paths[f]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFamily, string(f))
	}
	return p, nil
}

// Source is the transport to one monitored host. Every call is blocking I/O
// and must honour ctx.
type Source interface {
	ReadLines(ctx context.Context, family Family) ([]string, error)
	ListBlockDevices(ctx context.Context) ([]string, error)
	ResolveLink(ctx context.Context, path string) (string, error)
	Close() error
}

// ReadFields reads a family and splits every line into whitespace separated
// fields. meminfo and net/dev use "name:" prefixes, so the colon is treated as
// a separator for them.
func ReadFields(ctx context.Context, src Source, family Family) ([][]string, error) {
	lines, err := src.ReadLines(ctx, family)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%s: %w", family, ErrNoData)
	}
	sep := ""
	if family == FamilyMem || family == FamilyNet {
		sep = ":"
	}
	return Tokenize(lines, sep), nil
}

// Tokenize splits lines into fields, replacing sep with a space first when
// sep is not empty. Blank lines are dropped.
func Tokenize(lines []string, sep string) [][]string {
	out := make([][]string, 0, len(lines))
	for _, line := range lines {
		if sep != "" {
			line = strings.ReplaceAll(line, sep, " ")
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		out = append(out, fields)
	}
	return out
}

func splitLines(data []byte) []string {
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
