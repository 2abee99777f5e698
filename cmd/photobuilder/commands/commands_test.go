package commands

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/photobuilder/internal/build"
	"git.home.luguber.info/inful/photobuilder/internal/config"
	"git.home.luguber.info/inful/photobuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/photobuilder/internal/testutil"
)

func testGlobal() (*Global, *bytes.Buffer) {
	var out bytes.Buffer
	return &Global{Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), Out: &out}, &out
}

// project writes an initialized config next to a content directory.
func project(t *testing.T) (*CLI, string) {
	t.Helper()
	dir := t.TempDir()
	g, _ := testGlobal()
	root := &CLI{Config: filepath.Join(dir, config.DefaultFileName)}
	require.NoError(t, (&InitCmd{}).Run(g, root))
	testutil.WriteJPEG(t, filepath.Join(dir, "content", "01 Coast", "wave.jpg"), 120, 80)
	return root, dir
}

func TestInit_RefusesToOverwrite(t *testing.T) {
	root, _ := project(t)
	g, _ := testGlobal()
	err := (&InitCmd{}).Run(g, root)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))

	require.NoError(t, (&InitCmd{Force: true}).Run(g, root))
}

func TestBuildThenHistory(t *testing.T) {
	root, dir := project(t)
	g, out := testGlobal()

	require.NoError(t, (&BuildCmd{}).Run(t.Context(), g, root))
	assert.Contains(t, out.String(), "build ok")
	testutil.NewFiles(t, filepath.Join(dir, "output")).
		Exists("index.html", "coast/index.html", "images/wave/120.jpg").
		Contains("coast/index.html", "images/wave/120.jpg")

	out.Reset()
	require.NoError(t, (&HistoryCmd{Limit: 10}).Run(t.Context(), g, root))
	assert.Contains(t, out.String(), "STAGE")
	assert.Contains(t, out.String(), "render")
	assert.Contains(t, out.String(), "build")
}

func TestStageCommands(t *testing.T) {
	root, dir := project(t)
	g, out := testGlobal()

	require.NoError(t, (&ScanCmd{}).Run(t.Context(), g, root))
	require.NoError(t, (&ImagesCmd{}).Run(t.Context(), g, root))
	require.NoError(t, (&ImagesCmd{Force: true}).Run(t.Context(), g, root))
	require.NoError(t, (&RenderCmd{}).Run(t.Context(), g, root))
	assert.Contains(t, out.String(), "scan ok")
	assert.Contains(t, out.String(), "images ok")
	assert.Contains(t, out.String(), "render ok")
	assert.FileExists(t, filepath.Join(dir, "output", "index.html"))
}

func TestImagesWithoutScanFails(t *testing.T) {
	root, _ := project(t)
	g, out := testGlobal()

	err := (&ImagesCmd{}).Run(t.Context(), g, root)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryImage))
	assert.Equal(t, 11, errors.NewCLIErrorAdapter(false, g.Logger).ExitCodeFor(err))
	assert.Contains(t, out.String(), "images FAILED: no manifest found; run scan first")
}

func TestMissingConfig(t *testing.T) {
	g, _ := testGlobal()
	root := &CLI{Config: filepath.Join(t.TempDir(), "nope.yaml")}
	err := (&BuildCmd{}).Run(t.Context(), g, root)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestReportMapsBuildFailureToStage(t *testing.T) {
	g, _ := testGlobal()
	err := report(g, &build.Result{Stage: build.StageBuild, Message: "render: parse template x"})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryRender))

	require.NoError(t, report(g, &build.Result{Stage: "scan", Success: true}))
}

func TestHistoryEmpty(t *testing.T) {
	root, _ := project(t)
	g, out := testGlobal()
	require.NoError(t, (&HistoryCmd{Limit: 5}).Run(t.Context(), g, root))
	assert.Contains(t, out.String(), "no runs recorded")
}

func TestHistoryUnknownRunAndNoSuccess(t *testing.T) {
	root, _ := project(t)
	g, _ := testGlobal()

	err := (&HistoryCmd{RunID: "does-not-exist"}).Run(t.Context(), g, root)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))

	err = (&HistoryCmd{Last: true}).Run(t.Context(), g, root)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}

func TestHistoryLastSuccess(t *testing.T) {
	root, _ := project(t)
	g, out := testGlobal()
	require.NoError(t, (&BuildCmd{}).Run(t.Context(), g, root))

	out.Reset()
	require.NoError(t, (&HistoryCmd{Last: true}).Run(t.Context(), g, root))
	assert.Contains(t, out.String(), "build")
	assert.Contains(t, out.String(), "ok")

	out.Reset()
	require.NoError(t, (&HistoryCmd{Last: true, Stage: "render"}).Run(t.Context(), g, root))
	assert.Contains(t, out.String(), "render")
}
