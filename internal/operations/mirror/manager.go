package mirror

import (
	"context"
	"path/filepath"

	"github.com/jiandanzhineng/easysmart-tools/internal/config"
	"github.com/sirupsen/logrus"
)

// Manager runs the pipeline for several projects, one after the other.
type Manager struct {
	pipeline *Pipeline
	logger   *logrus.Entry
}

func NewManager(pipeline *Pipeline) *Manager {
	return &Manager{
		pipeline: pipeline,
		logger:   logrus.WithField("component", "mirror-manager"),
	}
}

// RunAll mirrors every project in order. A failed project does not stop the
// following ones and never touches output an earlier project produced.
func (m *Manager) RunAll(ctx context.Context, projects []Project) []*Result {
	results := make([]*Result, 0, len(projects))

	for _, project := range projects {
		result := m.pipeline.Run(ctx, project)
		results = append(results, result)

		entry := m.logger.WithFields(logrus.Fields{
			"project": project.Name,
			"output":  project.OutputDir,
		})
		if result.Success {
			entry.Info("✓ Project mirrored")
		} else {
			entry.WithError(result.Err).Error("✗ Project mirror failed")
		}
	}

	return results
}

// AllSucceeded reports whether every result is a success. An empty slice
// counts as failure: nothing was mirrored.
func AllSucceeded(results []*Result) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if !r.Success {
			return false
		}
	}
	return true
}

// ProjectsFromConfig places each configured project under root.
func ProjectsFromConfig(root string, projects []config.ProjectConfig) []Project {
	out := make([]Project, 0, len(projects))
	for _, p := range projects {
		dir := root
		if p.Subdir != "" {
			dir = filepath.Join(root, p.Subdir)
		}
		out = append(out, Project{
			Name:          p.Name,
			BaseURL:       p.BaseURL,
			OutputDir:     dir,
			SecondaryURL:  p.SecondaryURL,
			SecondaryFile: p.SecondaryFile,
		})
	}
	return out
}
