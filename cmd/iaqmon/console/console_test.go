package console

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestPrompt_Pick(t *testing.T) {
	constraints := []string{No, Yes}
	assert.Equal(t, No, pick("", constraints))
	assert.Equal(t, Yes, pick(" Y ", constraints))
	assert.Equal(t, No, pick("maybe", constraints))
	assert.Equal(t, "clear state? [N/y]: ", promptText("clear state?", constraints))
}

func TestOutput(t *testing.T) {
	color.NoColor = true
	var out, errOut bytes.Buffer
	SetOutput(&out, &errOut)
	t.Cleanup(func() { SetOutput(&bytes.Buffer{}, &bytes.Buffer{}) })

	Infof("state %s", "saved")
	Errorf("bus %#x", 0x77)
	Warnf("no url")
	assert.Equal(t, "... state saved\n", out.String())
	assert.Equal(t, "ERROR: bus 0x77\nWARN: no url\n", errOut.String())
	assert.Equal(t, "GOOD", Rated("GOOD"))
}
