/*
Copyright 2025 KCSC Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package files

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ListJSONFiles returns the names of the *.json files directly inside dir.
// The extension check is case-insensitive.
func ListJSONFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("error reading inbox directory %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(entry.Name()), ".json") {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// IsFileStable reports whether the file's size stays constant across the
// given number of samples taken interval apart. A file that cannot be
// stat'd is reported unstable, never an error: the terminal may still be
// writing or may have removed it.
func IsFileStable(path string, samples int, interval time.Duration) bool {
	if samples < 1 {
		samples = 1
	}
	sizes := make([]int64, 0, samples)
	for i := 0; i < samples; i++ {
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		sizes = append(sizes, info.Size())
		time.Sleep(interval)
	}
	for _, size := range sizes {
		if size != sizes[0] {
			return false
		}
	}
	return true
}

// StableFiles returns the subset of candidate names in dir whose size has
// stopped changing. Pure observation; the caller decides what to register.
func StableFiles(dir string, names []string, samples int, interval time.Duration) []string {
	var stable []string
	for _, name := range names {
		if IsFileStable(filepath.Join(dir, name), samples, interval) {
			stable = append(stable, name)
		}
	}
	return stable
}

// EnsureDir creates dir and any missing parents.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// MoveFile moves src to dst, falling back to copy-and-remove when a plain
// rename fails (cross-device moves between inbox and staging volumes).
func MoveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("error opening %s for move: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("error creating %s for move: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("error copying %s to %s: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

// ArchiveFile moves src into archiveDir, creating the directory first. The
// move is best-effort: when it fails the source is deleted instead, so a
// failed archive never leaves the file behind to be reprocessed.
func ArchiveFile(src, archiveDir string) error {
	if err := EnsureDir(archiveDir); err != nil {
		log.Printf("Error creating archive directory %s, removing %s instead: %v", archiveDir, src, err)
		return os.Remove(src)
	}
	dst := filepath.Join(archiveDir, filepath.Base(src))
	if err := MoveFile(src, dst); err != nil {
		log.Printf("Error archiving %s, removing instead: %v", src, err)
		return os.Remove(src)
	}
	return nil
}
