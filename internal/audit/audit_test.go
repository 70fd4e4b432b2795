package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditor(t *testing.T) {
	tempDir := filepath.Join(t.TempDir(), "snapshots")
	auditor := NewAuditor(tempDir)

	t.Run("SaveSnapshot creates directory and saves file", func(t *testing.T) {
		filename, err := auditor.SaveSnapshot(Snapshot{
			URL:         "https://lib.example/opds",
			StatusCode:  200,
			ContentType: "text/html",
			Error:       "malformed feed",
			BodyPrefix:  "<html><body>maintenance</body></html>",
		})
		require.NoError(t, err)
		assert.Contains(t, filename, ".json")

		fileContent, err := os.ReadFile(filepath.Join(tempDir, filename))
		require.NoError(t, err)

		var saved Snapshot
		require.NoError(t, json.Unmarshal(fileContent, &saved))
		assert.Equal(t, "https://lib.example/opds", saved.URL)
		assert.Equal(t, "text/html", saved.ContentType)
		assert.False(t, saved.CapturedAt.IsZero())
	})

	t.Run("SaveJSON generates unique filenames", func(t *testing.T) {
		testData := map[string]string{"key": "value"}

		filename1, err := auditor.SaveJSON(testData)
		require.NoError(t, err)

		filename2, err := auditor.SaveJSON(testData)
		require.NoError(t, err)

		assert.NotEqual(t, filename1, filename2)
	})
}
