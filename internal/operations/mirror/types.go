package mirror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jiandanzhineng/easysmart-tools/internal/operations/common"
)

// Constants
const (
	ManifestFile     = "latest.yml"
	InstallerPattern = "*.exe"
	CanonicalName    = "EasySmart-Setup.exe"
	ArchiveName      = "EasySmart-Setup.zip"
	ArchiveLevel     = 6
)

// Manifest is the release description published next to the installer.
// Keys missing from the document leave the matching field empty.
type Manifest struct {
	Version     string `yaml:"version"`
	Filename    string `yaml:"path"`
	Checksum    string `yaml:"sha512"`
	ReleaseDate string `yaml:"releaseDate"`
}

// Project is one upstream release to mirror into OutputDir.
type Project struct {
	Name          string
	BaseURL       string
	OutputDir     string
	SecondaryURL  string
	SecondaryFile string
}

// Step names a stage of the pipeline.
type Step string

const (
	StepPrepare        Step = "prepare"
	StepClean          Step = "clean"
	StepFetchManifest  Step = "fetch-manifest"
	StepParseManifest  Step = "parse-manifest"
	StepFetchInstaller Step = "fetch-installer"
	StepCanonicalCopy  Step = "canonical-copy"
	StepArchive        Step = "archive"
	StepSecondary      Step = "secondary-archive"
	StepList           Step = "list"
)

// FileInfo is one regular file in the output directory.
type FileInfo struct {
	Name string
	Size int64
}

// ArchiveStats describes a produced archive.
type ArchiveStats struct {
	OriginalSize   int64
	CompressedSize int64
}

// Ratio is the space saved, in percent.
func (s ArchiveStats) Ratio() float64 {
	if s.OriginalSize == 0 {
		return 0
	}
	return (1 - float64(s.CompressedSize)/float64(s.OriginalSize)) * 100
}

// Result reports one pipeline run.
type Result struct {
	Project    string
	OutputDir  string
	Success    bool
	FailedStep Step
	Err        error
	Manifest   *Manifest
	Files      []FileInfo
}

var (
	ErrTransport        = errors.New("transport failure")
	ErrUpstreamDown     = errors.New("upstream circuit open")
	ErrHTTPStatus       = errors.New("unexpected http status")
	ErrManifestParse    = errors.New("malformed manifest")
	ErrChecksumMismatch = common.ErrChecksumMismatch
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

func (e *StatusError) Unwrap() error {
	return ErrHTTPStatus
}

// StepError records the pipeline step an error came from.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
