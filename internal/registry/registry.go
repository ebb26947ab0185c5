// Package registry discovers the disks and network interfaces to sample in a
// cycle. Nothing is cached: both sets are read fresh on every call.
package registry

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"kstat-sampler/internal/metrics"
	"kstat-sampler/internal/source"
)

// MaxBlockDevices bounds the block device list against pathological mount
// tables.
const MaxBlockDevices = 30

var (
	diskFilter     = regexp.MustCompile(`^(loop|ram|sr|asm)\d+$`)
	nicFilter      = regexp.MustCompile(`^(lo|face|docker\d+)$`)
	partitionDigit = regexp.MustCompile(`\d+$`)
)

// ignoredFS are pseudo filesystems whose mounts never back a real disk.
var ignoredFS = map[string]struct{}{
	"binfmt_misc": {},
	"cgroup":      {},
	"debugfs":     {},
	"devpts":      {},
	"devtmpfs":    {},
	"fusectl":     {},
	"proc":        {},
	"pstore":      {},
	"securityfs":  {},
	"sysfs":       {},
	"tmpfs":       {},
	"xenfs":       {},
	"iso9660":     {},
}

type Registry struct {
	src   source.Source
	limit int
}

func New(src source.Source) *Registry {
	return &Registry{src: src, limit: MaxBlockDevices}
}

// ListBlockDevices returns the exposed block devices that back a mounted real
// filesystem, in listing order.
func (r *Registry) ListBlockDevices(ctx context.Context) ([]string, error) {
	mounts, err := r.src.ReadLines(ctx, source.FamilyMounts)
	if err != nil {
		return nil, fmt.Errorf("failed to read mount table: %w", err)
	}
	mounted, err := r.mountedDevices(ctx, source.Tokenize(mounts, ""))
	if err != nil {
		return nil, err
	}

	listing, err := r.src.ListBlockDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list block devices: %w", err)
	}
	return FilterBlockDevices(listing, mounted, r.limit), nil
}

// ListNetworkInterfaces returns the interface names from the network counter
// source, skipping loopback, header and container bridge lines.
func (r *Registry) ListNetworkInterfaces(ctx context.Context) ([]string, error) {
	lines, err := source.ReadFields(ctx, r.src, source.FamilyNet)
	if err != nil {
		return nil, fmt.Errorf("failed to read interfaces: %w", err)
	}
	return FilterInterfaces(lines), nil
}

// mountedDevices resolves the mount table into base device names. Context
// errors abort; any other failure to resolve a device-mapper link only drops
// that entry.
func (r *Registry) mountedDevices(ctx context.Context, mounts [][]string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for _, m := range mounts {
		if len(m) < 4 {
			continue
		}
		if _, skip := ignoredFS[m[2]]; skip {
			continue
		}
		dev := m[0]
		if strings.HasPrefix(dev, "/dev/mapper") {
			target, err := r.src.ResolveLink(ctx, dev)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				continue
			}
			dev = path.Base(target)
		} else {
			dev = BaseDevice(dev)
		}
		if dev != "" && dev != "." && dev != "/" {
			out[dev] = struct{}{}
		}
	}
	return out, nil
}

// BaseDevice maps a partition path to its disk name: /dev/xvda1 -> xvda.
func BaseDevice(dev string) string {
	return partitionDigit.ReplaceAllString(path.Base(dev), "")
}

// FilterBlockDevices keeps the listed devices that are mounted and are not
// synthetic, up to limit entries.
func FilterBlockDevices(listing []string, mounted map[string]struct{}, limit int) []string {
	var out []string
	for _, entry := range listing {
		name := blockName(entry)
		if name == "" || diskFilter.MatchString(name) {
			continue
		}
		if _, ok := mounted[name]; !ok {
			continue
		}
		out = append(out, name)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// blockName takes the last path segment of a listing line, so both bare
// names and "ls -l" style link targets work.
func blockName(entry string) string {
	if i := strings.LastIndex(entry, "/"); i >= 0 {
		entry = entry[i+1:]
	}
	return strings.TrimSpace(strings.ReplaceAll(entry, ":", ""))
}

// FilterInterfaces extracts interface names from tokenized /proc/net/dev lines.
func FilterInterfaces(lines [][]string) []string {
	var out []string
	for _, l := range lines {
		if len(l) < metrics.NetFields || nicFilter.MatchString(l[0]) {
			continue
		}
		out = append(out, l[0])
	}
	return out
}
