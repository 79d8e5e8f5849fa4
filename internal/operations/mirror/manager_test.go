package mirror

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jiandanzhineng/easysmart-tools/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RunAllIsolatesFailures(t *testing.T) {
	rs := newReleaseServer(t, map[string][]byte{
		"/client/latest.yml":    []byte(testManifest),
		"/client/app-1.0.0.exe": []byte("MZ client"),
		"/zipball/stable":       []byte("PK"),
	})

	root := t.TempDir()
	projects := []Project{
		{
			Name:          "electron-client",
			BaseURL:       rs.URL + "/client/",
			OutputDir:     root,
			SecondaryURL:  rs.URL + "/zipball/stable",
			SecondaryFile: "control-panel-stable.zip",
		},
		{
			Name:          "control-panel",
			BaseURL:       rs.URL + "/panel/",
			OutputDir:     filepath.Join(root, "control-panel"),
			SecondaryURL:  rs.URL + "/zipball/stable",
			SecondaryFile: "control-panel-stable.zip",
		},
	}

	results := NewManager(newTestPipeline()).RunAll(context.Background(), projects)
	require.Len(t, results, 2)

	assert.True(t, results[0].Success, "first project: %v", results[0].Err)
	assert.False(t, results[1].Success)
	assert.Equal(t, StepFetchManifest, results[1].FailedStep)
	assert.False(t, AllSucceeded(results))

	assert.FileExists(t, filepath.Join(root, ArchiveName))
	assert.NoFileExists(t, filepath.Join(root, "control-panel", ArchiveName))
}

func TestManager_FirstFailureDoesNotStopSecond(t *testing.T) {
	rs := newReleaseServer(t, map[string][]byte{
		"/panel/latest.yml":    []byte(testManifest),
		"/panel/app-1.0.0.exe": []byte("MZ panel"),
		"/zipball/stable":      []byte("PK"),
	})

	root := t.TempDir()
	projects := []Project{
		{Name: "electron-client", BaseURL: rs.URL + "/client/", OutputDir: root},
		{
			Name:          "control-panel",
			BaseURL:       rs.URL + "/panel/",
			OutputDir:     filepath.Join(root, "control-panel"),
			SecondaryURL:  rs.URL + "/zipball/stable",
			SecondaryFile: "control-panel-stable.zip",
		},
	}

	results := NewManager(newTestPipeline()).RunAll(context.Background(), projects)
	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.True(t, results[1].Success, "second project: %v", results[1].Err)
}

func TestManager_MissingReleasesDoNotBlockLaterProjects(t *testing.T) {
	rs := newReleaseServer(t, map[string][]byte{
		"/panel/latest.yml":    []byte(testManifest),
		"/panel/app-1.0.0.exe": []byte("MZ panel"),
		"/zipball/stable":      []byte("PK"),
	})

	root := t.TempDir()
	var projects []Project
	for _, name := range []string{"beta", "nightly", "legacy"} {
		projects = append(projects, Project{
			Name:      name,
			BaseURL:   rs.URL + "/" + name + "/",
			OutputDir: filepath.Join(root, name),
		})
	}
	projects = append(projects, Project{
		Name:          "control-panel",
		BaseURL:       rs.URL + "/panel/",
		OutputDir:     filepath.Join(root, "control-panel"),
		SecondaryURL:  rs.URL + "/zipball/stable",
		SecondaryFile: "control-panel-stable.zip",
	})

	results := NewManager(newTestPipeline()).RunAll(context.Background(), projects)
	require.Len(t, results, 4)

	for _, r := range results[:3] {
		assert.False(t, r.Success)
		assert.True(t, errors.Is(r.Err, ErrHTTPStatus), "%s: %v", r.Project, r.Err)
	}
	assert.True(t, results[3].Success, "control-panel: %v", results[3].Err)
	assert.Contains(t, rs.paths(), "/panel/app-1.0.0.exe")
}

func TestAllSucceeded(t *testing.T) {
	assert.False(t, AllSucceeded(nil))
	assert.True(t, AllSucceeded([]*Result{{Success: true}, {Success: true}}))
	assert.False(t, AllSucceeded([]*Result{{Success: true}, {Success: false}}))
}

func TestProjectsFromConfig(t *testing.T) {
	projects := ProjectsFromConfig("/srv/mirror", []config.ProjectConfig{
		{Name: "electron-client", BaseURL: "https://a/", SecondaryURL: "https://z", SecondaryFile: "z.zip"},
		{Name: "control-panel", BaseURL: "https://b/", Subdir: "control-panel", SecondaryURL: "https://z", SecondaryFile: "z.zip"},
	})

	require.Len(t, projects, 2)
	assert.Equal(t, "/srv/mirror", projects[0].OutputDir)
	assert.Equal(t, filepath.Join("/srv/mirror", "control-panel"), projects[1].OutputDir)
	assert.Equal(t, "https://b/", projects[1].BaseURL)
	assert.Equal(t, "z.zip", projects[1].SecondaryFile)
}
