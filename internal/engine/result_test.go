// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweepd/sweepd/internal/models"
)

func TestParseResultKeyedGroups(t *testing.T) {
	raw := []byte(`{
		"100": [
			{"path": "/storage/a.bin", "size": 100, "modified_date": 1700000100},
			{"path": "/storage/b.bin", "size": 100, "modified_date": 1700000200}
		],
		"50": [
			{"path": "/storage/c.bin", "size": 50, "modified_date": 1700000300},
			{"path": "/storage/d.bin", "size": 50, "modified_date": 1700000400}
		]
	}`)

	findings, err := ParseResult(raw, models.CategoryDuplicates)
	require.NoError(t, err)
	require.Len(t, findings.Groups, 2)
	assert.Empty(t, findings.Files)
	assert.Equal(t, 2, findings.Count())
	assert.Equal(t, int64(300), findings.TotalSize())

	// Normalized: groups ordered by total size desc, members by size desc
	// with path tiebreak.
	g := findings.Groups[0]
	assert.Equal(t, int64(200), g.TotalSize)
	assert.Equal(t, "/storage/a.bin", g.Files[0].Path)
	assert.Equal(t, "/storage/b.bin", g.Files[1].Path)
	assert.Equal(t, int64(100), findings.Groups[1].TotalSize)

	entry := findings.Groups[0].Files[0]
	assert.False(t, entry.ModifiedAt.IsZero())
	assert.Equal(t, time.UTC, entry.ModifiedAt.Location())
}

func TestParseResultArrayOfArrays(t *testing.T) {
	raw := []byte(`[
		[
			{"path": "/storage/img1.jpg", "size": 2000, "similarity": 3},
			{"path": "/storage/img2.jpg", "size": 1500, "similarity": 3}
		]
	]`)

	findings, err := ParseResult(raw, models.CategorySimilarImages)
	require.NoError(t, err)
	require.Len(t, findings.Groups, 1)
	require.Len(t, findings.Groups[0].Files, 2)
	assert.Equal(t, 3, findings.Groups[0].Files[0].Similarity)
}

func TestParseResultWrappedGroups(t *testing.T) {
	raw := []byte(`[
		{"files": [
			{"path": "/storage/a", "size": 10},
			{"path": "/storage/b", "size": 10}
		]}
	]`)

	findings, err := ParseResult(raw, models.CategoryDuplicates)
	require.NoError(t, err)
	require.Len(t, findings.Groups, 1)
	assert.Len(t, findings.Groups[0].Files, 2)
}

func TestParseResultFlatCategory(t *testing.T) {
	raw := []byte(`[
		{"path": "/storage/empty1", "size": 0},
		{"path": "/storage/empty2", "size": 0}
	]`)

	findings, err := ParseResult(raw, models.CategoryEmptyFiles)
	require.NoError(t, err)
	assert.Empty(t, findings.Groups)
	assert.Len(t, findings.Files, 2)
	assert.Equal(t, 2, findings.Count())
}

func TestParseResultPlainPathStrings(t *testing.T) {
	raw := []byte(`["/storage/empty-dir-1", "/storage/empty-dir-2"]`)

	findings, err := ParseResult(raw, models.CategoryEmptyDirs)
	require.NoError(t, err)
	require.Len(t, findings.Files, 2)
	assert.Equal(t, "/storage/empty-dir-1", findings.Files[0].Path)
}

func TestParseResultEmptyDocumentIsZeroFindings(t *testing.T) {
	for _, raw := range []string{`[]`, `{}`} {
		findings, err := ParseResult([]byte(raw), models.CategoryDuplicates)
		require.NoError(t, err, raw)
		assert.Equal(t, 0, findings.Count())
	}
}

func TestParseResultMissingDocument(t *testing.T) {
	_, err := ParseResult(nil, models.CategoryDuplicates)
	require.ErrorIs(t, err, ErrEmptyResult)

	_, err = ParseResult([]byte("   \n"), models.CategoryDuplicates)
	require.ErrorIs(t, err, ErrEmptyResult)
}

func TestParseResultGarbage(t *testing.T) {
	_, err := ParseResult([]byte("not json at all"), models.CategoryDuplicates)
	require.Error(t, err)

	_, err = ParseResult([]byte(`{"oops": "not a list"}`), models.CategoryDuplicates)
	require.Error(t, err)
}
