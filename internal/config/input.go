package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

type urlList struct {
	URLs []string `json:"urls"`
}

// ReadURLs loads the URL list. Files ending in .json hold {"urls": [...]},
// anything else is read one URL per line.
func ReadURLs(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open url file %s: %w", path, err)
	}
	defer file.Close()

	if strings.HasSuffix(path, ".json") {
		var list urlList
		if err := json.NewDecoder(file).Decode(&list); err != nil {
			return nil, fmt.Errorf("failed to decode url file %s: %w", path, err)
		}
		return list.URLs, nil
	}

	return readLines(file, path)
}

// ReadHeaders resolves the -H argument: a path to an existing file with one
// header per line, or a comma-separated list. Empty means DefaultHeaders.
func ReadHeaders(arg string) ([]string, error) {
	if arg == "" {
		return append([]string(nil), DefaultHeaders...), nil
	}

	if _, err := os.Stat(arg); err == nil {
		file, err := os.Open(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to open header file %s: %w", arg, err)
		}
		defer file.Close()
		return readLines(file, arg)
	}

	headers := make([]string, 0)
	for _, h := range strings.Split(arg, ",") {
		if h = strings.TrimSpace(h); h != "" {
			headers = append(headers, h)
		}
	}
	return headers, nil
}

func readLines(file *os.File, path string) ([]string, error) {
	lines := make([]string, 0)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return lines, nil
}
