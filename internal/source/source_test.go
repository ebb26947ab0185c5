package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFamilyPath(t *testing.T) {
	p, err := FamilyIO.Path()
	require.NoError(t, err)
	assert.Equal(t, "/proc/diskstats", p)

	_, err = Family("gpu").Path()
	assert.ErrorIs(t, err, ErrUnknownFamily)
}

func TestTokenize(t *testing.T) {
	lines := []string{
		"Inter-|   Receive",
		"",
		"  eth0: 1000 10 0 0 0 0 0 0 2000 20 0 0 0 0 0 0",
	}

	got := Tokenize(lines, ":")

	require.Len(t, got, 2)
	assert.Equal(t, "eth0", got[1][0])
	assert.Equal(t, "1000", got[1][1])
	assert.Len(t, got[1], 17)
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, `'/dev/mapper/vg-root'`, shellQuote("/dev/mapper/vg-root"))
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
}

func newFixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	write := func(rel, body string) {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	write("proc/meminfo", "MemTotal:       16000000 kB\nMemFree:         8000000 kB\n")
	write("proc/loadavg", "0.50 0.40 0.30 1/200 12345\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sys/block/sda"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sys/block/loop0"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dev/mapper"), 0o755))
	write("dev/dm-0", "")
	require.NoError(t, os.Symlink("../dm-0", filepath.Join(root, "dev/mapper/vg-root")))
	return root
}

func TestLocalReadFields(t *testing.T) {
	src := NewLocal(newFixture(t))
	ctx := context.Background()

	fields, err := ReadFields(ctx, src, FamilyMem)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, []string{"MemTotal", "16000000", "kB"}, fields[0])

	load, err := ReadFields(ctx, src, FamilyLoad)
	require.NoError(t, err)
	assert.Equal(t, "0.50", load[0][0])
}

func TestLocalReadMissingFile(t *testing.T) {
	src := NewLocal(newFixture(t))

	_, err := src.ReadLines(context.Background(), FamilyTCP6)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "tcp6")
}

func TestLocalHonoursCancelledContext(t *testing.T) {
	src := NewLocal(newFixture(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.ReadLines(ctx, FamilyMem)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalListBlockDevices(t *testing.T) {
	src := NewLocal(newFixture(t))

	names, err := src.ListBlockDevices(context.Background())

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sda", "loop0"}, names)
}

func TestLocalResolveLink(t *testing.T) {
	src := NewLocal(newFixture(t))

	target, err := src.ResolveLink(context.Background(), "/dev/mapper/vg-root")

	require.NoError(t, err)
	assert.Equal(t, "/dev/dm-0", target)
}

func TestNewSSHRequiresCredentials(t *testing.T) {
	_, err := NewSSH(SSHOptions{Host: "db1", User: "root"})
	assert.Error(t, err)

	_, err = NewSSH(SSHOptions{User: "root", Password: "x"})
	assert.Error(t, err)

	s, err := NewSSH(SSHOptions{Host: "db1", User: "root", Password: "x"})
	require.NoError(t, err)
	assert.Equal(t, "db1:22", s.addr)
	assert.NoError(t, s.Close())
}
