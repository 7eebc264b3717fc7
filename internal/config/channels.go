package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// LoadChannels reads the conda channels listed one per line in {dir}/channels,
// in order and without duplicates. A missing file yields no channels. Blank
// lines and lines starting with "#" are skipped, as is anything after
// whitespace on a line.
func LoadChannels(dir string) ([]string, error) {
	f, err := os.Open(filepath.Join(dir, "channels"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var channels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		channel := strings.Fields(line)[0]
		channels = mergeChannels(channels, []string{channel})
	}

	if err := scanner.Err(); err != nil {
		return channels, err
	}
	return channels, nil
}

// mergeChannels appends the channels of extra missing from base.
func mergeChannels(base, extra []string) []string {
	for _, ch := range extra {
		ch = strings.TrimSpace(ch)
		if ch == "" {
			continue
		}
		found := false
		for _, have := range base {
			if have == ch {
				found = true
				break
			}
		}
		if !found {
			base = append(base, ch)
		}
	}
	return base
}
