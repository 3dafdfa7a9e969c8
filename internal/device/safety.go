package device

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dbsmedya/gowipe/internal/command"
	"github.com/dbsmedya/gowipe/internal/logger"
	"github.com/dbsmedya/gowipe/internal/wipeerr"
)

// SafetyOptions configures the pre-flight inspection.
type SafetyOptions struct {
	MountsFile string
	LsofBinary string
	UseSudo    bool
	Timeout    time.Duration
}

// SafetyInspector looks for signs that a device is still in use. Findings
// are advisory and never block planning.
type SafetyInspector struct {
	runner command.Runner
	opts   SafetyOptions
	logger *logger.Logger
}

// NewSafetyInspector creates a SafetyInspector.
func NewSafetyInspector(runner command.Runner, opts SafetyOptions, log *logger.Logger) (*SafetyInspector, error) {
	if runner == nil {
		return nil, fmt.Errorf("command runner is nil")
	}
	if opts.MountsFile == "" {
		opts.MountsFile = "/proc/mounts"
	}
	if opts.LsofBinary == "" {
		opts.LsofBinary = "lsof"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &SafetyInspector{runner: runner, opts: opts, logger: log}, nil
}

// Inspect runs the mount check and then the open-handle check, returning
// one human-readable issue per finding.
func (s *SafetyInspector) Inspect(ctx context.Context, path string) []string {
	var issues []string
	issues = append(issues, s.checkMounted(path)...)
	issues = append(issues, s.checkInUse(ctx, path)...)

	for _, issue := range issues {
		s.logger.Warnw("Safety issue", "path", path, "issue", issue)
	}
	return issues
}

func (s *SafetyInspector) checkMounted(path string) []string {
	f, err := os.Open(s.opts.MountsFile)
	if err != nil {
		return []string{fmt.Sprintf("Could not check mount status of %s: %v", path, err)}
	}
	defer f.Close()

	var issues []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		source, target := fields[0], unescapeMountPath(fields[1])
		switch {
		case source == path:
			issues = append(issues, fmt.Sprintf("Device %s is currently mounted at %s", path, target))
		case isPartitionOf(source, path):
			issues = append(issues, fmt.Sprintf("Partition %s of %s is currently mounted at %s", source, path, target))
		}
	}
	if err := scanner.Err(); err != nil {
		issues = append(issues, fmt.Sprintf("Could not check mount status of %s: %v", path, err))
	}
	return issues
}

func (s *SafetyInspector) checkInUse(ctx context.Context, path string) []string {
	name, args := command.Privileged(s.opts.UseSudo, s.opts.LsofBinary, path)
	res, err := s.runner.Run(ctx, s.opts.Timeout, name, args...)
	switch {
	case err == nil:
		if res != nil && strings.TrimSpace(res.Stdout) != "" {
			return []string{fmt.Sprintf("Device %s is in use by other processes", path)}
		}
		return nil
	case wipeerr.Is(err, wipeerr.CommandNotFound):
		s.logger.Debugw("lsof not available, skipping in-use check", "binary", s.opts.LsofBinary)
		return nil
	case wipeerr.Is(err, wipeerr.CommandFailed):
		// lsof exits non-zero when nothing holds the file open
		return nil
	default:
		return []string{fmt.Sprintf("Could not check whether %s is in use: %v", path, err)}
	}
}

// isPartitionOf reports whether source names a partition of path,
// e.g. /dev/nvme0n1p2 of /dev/nvme0n1.
func isPartitionOf(source, path string) bool {
	rest, ok := strings.CutPrefix(source, path+"p")
	if !ok || rest == "" {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// unescapeMountPath decodes the octal escapes used in /proc/mounts.
func unescapeMountPath(s string) string {
	r := strings.NewReplacer(`\040`, " ", `\011`, "\t", `\012`, "\n", `\134`, `\`)
	return r.Replace(s)
}
