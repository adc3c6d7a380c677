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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	return path
}

func TestListJSONFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.json")
	touch(t, dir, "B.JSON")
	touch(t, dir, "notes.txt")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.json"), 0o755))

	names, err := ListJSONFiles(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.json", "B.JSON"}, names)
}

func TestListJSONFiles_MissingDirErrors(t *testing.T) {
	_, err := ListJSONFiles(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestIsFileStable(t *testing.T) {
	dir := t.TempDir()
	path := touch(t, dir, "steady.json")

	assert.True(t, IsFileStable(path, 2, 0))
	assert.False(t, IsFileStable(filepath.Join(dir, "gone.json"), 2, 0))
}

func TestStableFiles_FiltersMissingCandidates(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "here.json")

	stable := StableFiles(dir, []string{"here.json", "gone.json"}, 1, 0)
	assert.Equal(t, []string{"here.json"}, stable)
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := touch(t, dir, "src.json")
	dst := filepath.Join(dir, "moved.json")

	require.NoError(t, MoveFile(src, dst))
	_, err := os.Stat(src)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(dst)
	assert.NoError(t, err)
}

func TestArchiveFile_CreatesNestedArchiveDir(t *testing.T) {
	dir := t.TempDir()
	src := touch(t, dir, "done.json")
	archiveDir := filepath.Join(dir, "archive", "terminal", "complete")

	require.NoError(t, ArchiveFile(src, archiveDir))
	_, err := os.Stat(filepath.Join(archiveDir, "done.json"))
	assert.NoError(t, err)
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}
