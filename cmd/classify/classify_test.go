package classify

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skinscan/skinscan/internal/classifier"
	"github.com/skinscan/skinscan/internal/imaging"
	"github.com/skinscan/skinscan/internal/inference"
	"github.com/skinscan/skinscan/internal/testutil"
)

type fixedModel struct{ probs []float32 }

func (m fixedModel) Score(*imaging.Tensor) ([]float32, error) {
	return append([]float32(nil), m.probs...), nil
}
func (m fixedModel) Info() classifier.Info { return classifier.Info{Name: "fixed"} }
func (m fixedModel) Close() error          { return nil }

func writePNG(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, testutil.PNG(t, 40, 30), 0o600))
	return path
}

func decodeLines(t *testing.T, out *bytes.Buffer) []FileResult {
	t.Helper()
	var results []FileResult
	sc := bufio.NewScanner(out)
	for sc.Scan() {
		var r FileResult
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		results = append(results, r)
	}
	require.NoError(t, sc.Err())
	return results
}

func TestRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := writePNG(t, dir, "mole.png")
	bad := filepath.Join(dir, "notes.png")
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0o600))
	missing := filepath.Join(dir, "missing.png")

	svc, err := inference.NewService(fixedModel{probs: []float32{0, 0, 0, 0, 0, 0.8, 0.2, 0, 0}}, inference.Options{})
	require.NoError(t, err)

	var out bytes.Buffer
	err = Run(&out, svc, []string{good, bad, missing, good}, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 4")

	results := decodeLines(t, &out)
	require.Len(t, results, 4)

	assert.Equal(t, good, results[0].File)
	assert.Equal(t, "melanoma", results[0].PredictedCondition)
	assert.NotEmpty(t, results[0].Recommendation)
	assert.InDelta(t, 0.8, results[0].Confidence, 1e-6)
	assert.Empty(t, results[0].Error)

	assert.NotEmpty(t, results[1].Error)
	assert.Empty(t, results[1].PredictedCondition)
	assert.Contains(t, results[2].Error, "cannot open image")
	assert.Equal(t, results[0], results[3])
}

func TestRun_AllSucceed(t *testing.T) {
	t.Parallel()

	path := writePNG(t, t.TempDir(), "a.png")
	svc, err := inference.NewService(fixedModel{probs: []float32{1, 0, 0, 0, 0, 0, 0, 0, 0}}, inference.Options{})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, Run(&out, svc, []string{path}, false))

	results := decodeLines(t, &out)
	require.Len(t, results, 1)
	assert.Equal(t, "actinic_keratosis", results[0].PredictedCondition)
	assert.Zero(t, results[0].Confidence)
	assert.NotContains(t, out.String(), "confidence")
}
