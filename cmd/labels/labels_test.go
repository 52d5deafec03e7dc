package labels

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, Write(&out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 10)
	assert.True(t, strings.HasPrefix(lines[0], "INDEX"))
	assert.Contains(t, lines[5], "melanocytic_nevus")
	assert.Contains(t, lines[5], "Monitor for any changes in shape, color, or size.")
	assert.Contains(t, lines[9], "vascular_lesion")
}

func TestCommand(t *testing.T) {
	t.Parallel()

	cmd := Command()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "actinic_keratosis")
}
