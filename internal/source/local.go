package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Local reads counters from the filesystem of the machine the sampler runs
// on. Root prefixes every path, which lets tests point it at a fixture tree.
type Local struct {
	root string
}

func NewLocal(root string) *Local {
	if root == "" {
		root = "/"
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	return &Local{root: root}
}

func (l *Local) ReadLines(ctx context.Context, family Family) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := family.Path()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(l.root, p))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", family, err)
	}
	return splitLines(data), nil
}

func (l *Local) ListBlockDevices(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(l.root, BlockDir))
	if err != nil {
		return nil, fmt.Errorf("list block devices: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names, nil
}

// ResolveLink follows path to its final target. The returned path is relative
// to root when root is not "/".
func (l *Local) ResolveLink(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target, err := filepath.EvalSymlinks(filepath.Join(l.root, path))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	if l.root != "/" {
		if rel, err := filepath.Rel(l.root, target); err == nil {
			return "/" + rel, nil
		}
	}
	return target, nil
}

func (l *Local) Close() error { return nil }
