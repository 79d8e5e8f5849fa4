package mirror

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/jiandanzhineng/easysmart-tools/internal/operations/common"
	"github.com/sirupsen/logrus"
)

// Pipeline mirrors the latest release of one project per Run call. Steps run
// strictly in order and the first failure ends the run; nothing is retried
// or rolled back.
type Pipeline struct {
	downloader     *Downloader
	verifyChecksum bool
	logger         *logrus.Entry
}

// PipelineOption customizes a Pipeline.
type PipelineOption func(*Pipeline)

// WithChecksumVerification makes the installer fetch fail when its SHA-512
// does not match the manifest.
func WithChecksumVerification(enabled bool) PipelineOption {
	return func(p *Pipeline) { p.verifyChecksum = enabled }
}

// WithPipelineLogger sets the log entry used by the pipeline.
func WithPipelineLogger(l *logrus.Entry) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline creates a pipeline fetching through downloader.
func NewPipeline(downloader *Downloader, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		downloader: downloader,
		logger:     logrus.WithField("component", "mirror-pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the pipeline for project and reports the outcome. The
// returned Result is never nil.
func (p *Pipeline) Run(ctx context.Context, project Project) *Result {
	log := p.logger.WithField("project", project.Name)
	out := project.OutputDir
	result := &Result{Project: project.Name, OutputDir: out}

	fail := func(step Step, err error) *Result {
		result.FailedStep = step
		result.Err = &StepError{Step: step, Err: err}
		log.WithFields(logrus.Fields{
			"step":  step,
			"error": err,
		}).Error("✗ Mirror step failed")
		return result
	}

	log.WithFields(logrus.Fields{
		"base_url": project.BaseURL,
		"output":   out,
	}).Info("=== Mirroring latest release ===")

	if err := os.MkdirAll(out, 0755); err != nil {
		return fail(StepPrepare, fmt.Errorf("failed to create output directory: %w", err))
	}

	log.Info("1. Cleaning stale installers")
	removed, err := CleanInstallers(log, out, InstallerPattern)
	if err != nil {
		return fail(StepClean, err)
	}
	if len(removed) == 0 {
		log.Info("✓ No stale installers found")
	} else {
		log.Infof("✓ Removed %d stale installer(s)", len(removed))
	}

	log.Infof("2. Fetching %s", ManifestFile)
	manifestPath := filepath.Join(out, ManifestFile)
	previous, _ := ReadManifest(manifestPath)

	manifestURL, err := ResolveURL(project.BaseURL, ManifestFile)
	if err != nil {
		return fail(StepFetchManifest, err)
	}
	if _, err := p.downloader.Download(ctx, manifestURL, manifestPath); err != nil {
		return fail(StepFetchManifest, err)
	}

	log.Infof("3. Parsing %s", ManifestFile)
	manifest, err := ReadManifest(manifestPath)
	if err != nil {
		return fail(StepParseManifest, err)
	}
	result.Manifest = manifest
	log.WithFields(logrus.Fields{
		"version":      manifest.Version,
		"file":         manifest.Filename,
		"release_date": manifest.ReleaseDate,
		"change":       describeTransition(previous, manifest),
	}).Info("✓ Manifest parsed")

	log.Infof("4. Fetching installer %s", manifest.Filename)
	installerName, err := installerFileName(manifest)
	if err != nil {
		return fail(StepFetchInstaller, err)
	}
	installerURL, err := ResolveURL(project.BaseURL, manifest.Filename)
	if err != nil {
		return fail(StepFetchInstaller, err)
	}
	installerPath := filepath.Join(out, installerName)
	if _, err := p.downloader.Download(ctx, installerURL, installerPath); err != nil {
		return fail(StepFetchInstaller, err)
	}
	if p.verifyChecksum {
		if manifest.Checksum == "" {
			return fail(StepFetchInstaller, fmt.Errorf("%w: manifest has no sha512", ErrChecksumMismatch))
		}
		if err := common.VerifyChecksum(log, installerPath, manifest.Checksum); err != nil {
			return fail(StepFetchInstaller, err)
		}
		log.Info("✓ Checksum verified")
	}

	log.Infof("5. Creating canonical copy %s", CanonicalName)
	canonicalPath := filepath.Join(out, CanonicalName)
	if installerName == CanonicalName {
		log.Info("✓ Installer already has the canonical name")
	} else {
		if err := common.CopyFile(log, installerPath, canonicalPath); err != nil {
			return fail(StepCanonicalCopy, err)
		}
		log.Infof("✓ Created %s", CanonicalName)
	}

	log.Infof("6. Creating %s", ArchiveName)
	stats, err := CreateArchive(canonicalPath, filepath.Join(out, ArchiveName), CanonicalName, ArchiveLevel)
	if err != nil {
		return fail(StepArchive, err)
	}
	log.WithFields(logrus.Fields{
		"original_mb":   fmt.Sprintf("%.1f", megabytes(stats.OriginalSize)),
		"compressed_mb": fmt.Sprintf("%.1f", megabytes(stats.CompressedSize)),
		"ratio":         fmt.Sprintf("%.1f%%", stats.Ratio()),
	}).Infof("✓ Created %s", ArchiveName)

	log.Infof("7. Fetching secondary archive %s", project.SecondaryFile)
	if _, err := p.downloader.Download(ctx, project.SecondaryURL, filepath.Join(out, project.SecondaryFile)); err != nil {
		return fail(StepSecondary, err)
	}

	files, err := ListFiles(out)
	if err != nil {
		return fail(StepList, err)
	}
	result.Files = files
	result.Success = true

	log.Info("=== Mirror completed ===")
	for _, f := range files {
		log.Infof("  - %s (%.1f MB)", f.Name, megabytes(f.Size))
	}

	return result
}

// installerFileName is the local name of the manifest's installer: the last
// element of its path, which keeps the download inside the output directory.
func installerFileName(m *Manifest) (string, error) {
	if m.Filename == "" {
		return "", errors.New("manifest has no path")
	}
	name := path.Base(m.Filename)
	switch name {
	case ".", "..", "/":
		return "", fmt.Errorf("manifest path %q has no file name", m.Filename)
	}
	return name, nil
}
