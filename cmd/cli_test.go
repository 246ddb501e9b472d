package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/clblur/internal/compute"
	"github.com/cwbudde/clblur/internal/config"
	"github.com/cwbudde/clblur/internal/pipeline"
	"github.com/cwbudde/clblur/internal/verify"
)

type env struct {
	dir     string
	config  string
	dataDir string
}

func newEnv(t *testing.T, configBody string) env {
	t.Helper()
	dir := t.TempDir()
	e := env{dir: dir, config: filepath.Join(dir, "clblur.toml"), dataDir: filepath.Join(dir, "data")}
	require.NoError(t, os.WriteFile(e.config, []byte(configBody), 0644))
	return e
}

func (e env) execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	return e.executeWith(t, nil, stdin, args...)
}

// executeWith lets a test replace parts of the app before the command runs.
func (e env) executeWith(t *testing.T, adjust func(*app), stdin string, args ...string) (string, error) {
	t.Helper()
	a := newApp()
	if adjust != nil {
		adjust(a)
	}
	var out, errOut bytes.Buffer
	a.stdin = strings.NewReader(stdin)
	a.stdout = &out
	a.stderr = &errOut

	root := newRootCmd(a)
	root.SetOut(&out)
	root.SetErr(&errOut)
	common := []string{"--config", e.config, "--data-dir", e.dataDir, "--driver", "reference", "--log-level", "error"}
	root.SetArgs(append(args, common...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (e env) writeImage(t *testing.T, name string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 20, 12))
	for y := 0; y < 12; y++ {
		for x := 0; x < 20; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 12), G: uint8(y * 20), B: 90, A: 255})
		}
	}
	path := filepath.Join(e.dir, name)
	require.NoError(t, imgio.Save(path, img, imgio.PNGEncoder()))
	return path
}

func TestBlurSaveAndInspect(t *testing.T) {
	e := newEnv(t, "")
	in := e.writeImage(t, "photo.png")

	out, err := e.execute(t, "", in, "5", "--verify", "--save-run")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Reference CPU")
	assert.Contains(t, out, "Image format:")
	assert.Contains(t, out, "Horizontal pass (device):")
	assert.Contains(t, out, "passed: true")

	outPath := filepath.Join(e.dir, "photo_convolved.png")
	_, err = os.Stat(outPath)
	require.NoError(t, err)

	m := regexp.MustCompile(`Run saved: (\S+)`).FindStringSubmatch(out)
	require.Len(t, m, 2)
	id := m[1]

	out, err = e.execute(t, "", "runs", "show", id)
	require.NoError(t, err)
	assert.Contains(t, out, "gaussian, 5 taps")
	assert.Contains(t, out, "convolveX")
	assert.Contains(t, out, "readImage")

	_, err = e.execute(t, "", in, "3", "--save-run")
	require.NoError(t, err)
	out, err = e.execute(t, "", "runs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "Total runs: 2")

	_, err = e.execute(t, "", "runs", "clean")
	assert.Error(t, err)

	out, err = e.execute(t, "n\n", "runs", "clean", "--keep-last", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted.")

	out, err = e.execute(t, "y\n", "runs", "clean", "--keep-last", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 1 run(s), 0 failed.")

	// The first run is the older one.
	_, err = e.execute(t, "", "runs", "show", id)
	assert.Error(t, err)
}

func TestFailedVerificationWritesNoOutput(t *testing.T) {
	e := newEnv(t, "")
	in := e.writeImage(t, "photo.png")
	inverted := func(a *app) {
		a.reference = func(ctx context.Context, host compute.HostImage, opts pipeline.Options) (compute.HostImage, error) {
			want, err := verify.Reference(ctx, host, opts)
			for i := range want.Pix {
				want.Pix[i] = 255 - want.Pix[i]
			}
			return want, err
		}
	}

	out, err := e.executeWith(t, inverted, "", in, "5", "--verify", "--save-run")
	require.Error(t, err)
	assert.Contains(t, out, "passed: false")
	assert.NotContains(t, out, "Wrote ")
	_, statErr := os.Stat(filepath.Join(e.dir, "photo_convolved.png"))
	assert.True(t, os.IsNotExist(statErr), "output written despite failed verification")

	// The failed run is still recorded, without an output path.
	out, err = e.execute(t, "", "runs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Total runs: 1")
}

func TestBlurRejectsBadArguments(t *testing.T) {
	e := newEnv(t, "")
	in := e.writeImage(t, "photo.png")

	_, err := e.execute(t, "", in, "4")
	assert.True(t, errors.Is(err, compute.ErrInvalidArgument), "got %v", err)
	_, statErr := os.Stat(filepath.Join(e.dir, "photo_convolved.png"))
	assert.True(t, os.IsNotExist(statErr), "no output on failure")

	_, err = e.execute(t, "", in, "wide")
	assert.True(t, errors.Is(err, compute.ErrInvalidArgument))

	_, err = e.execute(t, "", filepath.Join(e.dir, "missing.png"))
	assert.True(t, errors.Is(err, compute.ErrImageDecode))

	_, err = e.execute(t, "", in, "3", "extra")
	assert.Error(t, err)
}

func TestBlurUsesConfigFile(t *testing.T) {
	e := newEnv(t, "filter = \"binomial\"\nfilter_size = 4\nallow_even = true\nformat = \"bmp\"\n")
	in := e.writeImage(t, "photo.png")

	out, err := e.execute(t, "", in, "--save-run")
	require.NoError(t, err, out)
	_, err = os.Stat(filepath.Join(e.dir, "photo_convolved.bmp"))
	require.NoError(t, err)

	out, err = e.execute(t, "", "runs", "list")
	require.NoError(t, err)
	assert.Regexp(t, `Reference CPU\s+4\s`, out)
}

func TestInteractiveSelection(t *testing.T) {
	e := newEnv(t, "")
	in := e.writeImage(t, "photo.png")

	out, err := e.execute(t, "5\n0\n0\n", in, "3", "--interactive")
	require.NoError(t, err)
	assert.Contains(t, out, "Available platforms:")
	assert.Contains(t, out, `Invalid choice "5"`)
}

func TestDevicesAndVersion(t *testing.T) {
	e := newEnv(t, "")

	out, err := e.execute(t, "", "devices")
	require.NoError(t, err)
	assert.Contains(t, out, "Platform [0] Reference")
	assert.Contains(t, out, "[0:0]")
	assert.Contains(t, out, "Max image size:")

	out, err = e.execute(t, "", "devices", "--device-type", "gpu")
	require.NoError(t, err)
	assert.Contains(t, out, "no matching devices")

	out, err = e.execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "clblur version")
}

func TestTuneCommand(t *testing.T) {
	e := newEnv(t, "")
	in := e.writeImage(t, "photo.png")

	out, err := e.execute(t, "", "tune", in, "3", "--iters", "2", "--repeats", "1", "--top", "3")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Best: --local ")
}

func TestApplyFlags(t *testing.T) {
	fv := config.Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.StringVar(&fv.Filter, "filter", fv.Filter, "")
	fs.IntVar(&fv.Platform, "platform", fv.Platform, "")
	fs.StringVar(&fv.Local, "local", fv.Local, "")
	require.NoError(t, fs.Parse([]string{"--filter", "binomial"}))

	cfg := config.Default()
	cfg.Local = "8x8"
	cfg.Platform = 2
	applyFlags(&cfg, fv, fs)
	assert.Equal(t, "binomial", cfg.Filter)
	assert.Equal(t, "8x8", cfg.Local, "unchanged flags keep file values")
	assert.Equal(t, 2, cfg.Platform)
}
