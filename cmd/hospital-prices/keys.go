package main

import (
	"bufio"
	"context"
	"os"
	"strings"

	"github.com/go-faster/errors"

	"github.com/gyeh/hospital-prices/internal/storage"
)

// collectKeys resolves the storage keys a command should process: the
// arguments, plus any listed in keysFile, or else every object under prefix.
func collectKeys(ctx context.Context, store storage.Store, prefix string, args []string, keysFile string) ([]string, error) {
	names := append([]string(nil), args...)
	if keysFile != "" {
		fromFile, err := readKeys(keysFile)
		if err != nil {
			return nil, errors.Wrap(err, "reading keys file")
		}
		names = append(names, fromFile...)
	}
	if len(names) == 0 {
		keys, err := store.List(ctx, prefix+"/")
		if err != nil {
			return nil, errors.Wrapf(err, "listing %q", prefix)
		}
		return keys, nil
	}

	keys := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		k := resolveKey(prefix, n)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys, nil
}

// resolveKey places a bare file name under prefix. Names that already
// contain a directory are used as given.
func resolveKey(prefix, name string) string {
	if strings.Contains(name, "/") {
		return name
	}
	return storage.Join(prefix, name)
}

func readKeys(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var keys []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keys = append(keys, line)
	}
	return keys, scanner.Err()
}
