package infrastructure

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vinicius-ssantos/classroom-downloader-api/internal/domain"
)

// Markers prefixing the structured lines we ask yt-dlp to emit
const (
	progressMarker = "progress"
	outfileMarker  = "outfile"
)

// permanentOutputs are yt-dlp failure texts that retrying cannot fix
var permanentOutputs = []string{
	"Unsupported URL",
	"Video unavailable",
	"Private video",
	"This video is not available",
	"HTTP Error 403",
	"HTTP Error 404",
	"HTTP Error 410",
}

// YTDLPFetcher implements domain.Fetcher by shelling out to yt-dlp.
// One Fetch call is exactly one attempt; retry policy belongs to the
// caller.
type YTDLPFetcher struct {
	config  *domain.FetcherConfig
	logsDir string
	logger  *zap.Logger
}

// NewYTDLPFetcher creates a new yt-dlp backed fetcher
func NewYTDLPFetcher(config *domain.FetcherConfig, logsDir string, logger *zap.Logger) *YTDLPFetcher {
	return &YTDLPFetcher{
		config:  config,
		logsDir: logsDir,
		logger:  logger,
	}
}

// Fetch downloads one video into destDir, streaming progress through
// onProgress and returning the final output path and size.
func (f *YTDLPFetcher) Fetch(ctx context.Context, sourceURL, destDir string, onProgress domain.ProgressFunc) (*domain.FetchResult, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}

	args := f.buildArgs(sourceURL, destDir)

	downloadLog, err := f.openLogFile()
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer downloadLog.Close()
	f.writeLogHeader(downloadLog, sourceURL, f.config.Binary+" "+strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, f.config.Binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	// yt-dlp writes its ERROR: lines to stderr; keep a copy for
	// failure classification alongside the log file.
	var stderrBuf bytes.Buffer
	cmd.Stderr = io.MultiWriter(downloadLog, &stderrBuf)

	if err := cmd.Start(); err != nil {
		f.writeLogFooter(downloadLog, false, fmt.Sprintf("failed to start yt-dlp: %v", err))
		return nil, fmt.Errorf("failed to start yt-dlp: %w", err)
	}

	var outputPath string
	var tail []string
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		fmt.Fprintln(downloadLog, line)

		if downloaded, total, ok := parseProgressLine(line); ok {
			if onProgress != nil {
				onProgress(downloaded, total)
			}
			continue
		}
		if path, ok := parseOutfileLine(line); ok {
			outputPath = path
			continue
		}
		tail = appendTail(tail, line)
	}

	if err := cmd.Wait(); err != nil {
		msg := strings.Join(appendTail(tail, lastLine(stderrBuf.String())), "; ")
		f.writeLogFooter(downloadLog, false, fmt.Sprintf("yt-dlp failed: %v", err))
		fetchErr := fmt.Errorf("yt-dlp failed: %w (%s)", err, msg)
		if isPermanentOutput(stderrBuf.String()) || isPermanentOutput(msg) {
			return nil, &domain.PermanentError{Err: fetchErr}
		}
		return nil, fetchErr
	}

	if outputPath == "" {
		f.writeLogFooter(downloadLog, false, "no output file reported")
		return nil, fmt.Errorf("yt-dlp reported no output file")
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		f.writeLogFooter(downloadLog, false, fmt.Sprintf("output file missing: %v", err))
		return nil, fmt.Errorf("output file not found: %w", err)
	}

	f.writeLogFooter(downloadLog, true, fmt.Sprintf("Downloaded: %s", outputPath))
	f.logger.Debug("Fetch finished",
		zap.String("url", sourceURL),
		zap.String("output_path", outputPath),
		zap.Int64("size", info.Size()))

	return &domain.FetchResult{
		OutputPath: outputPath,
		FileSize:   info.Size(),
	}, nil
}

// buildArgs assembles the yt-dlp command line for one attempt.
// Retries are disabled inside yt-dlp so the worker owns the only
// retry layer.
func (f *YTDLPFetcher) buildArgs(sourceURL, destDir string) []string {
	args := []string{
		"--newline",
		"--no-playlist",
		"--retries", "0",
		"--socket-timeout", strconv.Itoa(f.config.SocketTimeout),
		"--merge-output-format", "mp4",
		"-f", f.config.Format,
		"-o", f.config.OutputTemplate,
		"-P", destDir,
		"--progress-template",
		fmt.Sprintf("download:%s %%(progress.downloaded_bytes)s %%(progress.total_bytes)s %%(progress.total_bytes_estimate)s", progressMarker),
		"--print", fmt.Sprintf("after_move:%s %%(filepath)s", outfileMarker),
		"--no-simulate",
	}

	if f.config.CookieFile != "" && fileExists(f.config.CookieFile) {
		args = append(args, "--cookies", f.config.CookieFile)
	}

	args = append(args, sourceURL)
	return args
}

// parseProgressLine parses a "progress <downloaded> <total> <estimate>"
// line. The total falls back to yt-dlp's estimate and is zero while
// both are still unknown.
func parseProgressLine(line string) (downloaded, total int64, ok bool) {
	fields := strings.Fields(line)
	if len(fields) != 4 || fields[0] != progressMarker {
		return 0, 0, false
	}

	downloaded, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}

	total, err = strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		total, err = strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			total = 0
		}
	}

	return downloaded, total, true
}

// parseOutfileLine parses an "outfile <path>" line
func parseOutfileLine(line string) (string, bool) {
	if !strings.HasPrefix(line, outfileMarker+" ") {
		return "", false
	}
	path := strings.TrimSpace(strings.TrimPrefix(line, outfileMarker+" "))
	if path == "" {
		return "", false
	}
	return path, true
}

// isPermanentOutput reports whether yt-dlp's output names a failure
// that retrying cannot fix.
func isPermanentOutput(output string) bool {
	for _, marker := range permanentOutputs {
		if strings.Contains(output, marker) {
			return true
		}
	}
	return false
}

// lastLine returns the final non-empty line of a block of output
func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}

// appendTail keeps the last few non-structured output lines for error
// messages.
func appendTail(tail []string, line string) []string {
	line = strings.TrimSpace(line)
	if line == "" {
		return tail
	}
	tail = append(tail, line)
	if len(tail) > 5 {
		tail = tail[len(tail)-5:]
	}
	return tail
}

// openLogFile opens the per-day download log file
func (f *YTDLPFetcher) openLogFile() (*os.File, error) {
	if err := os.MkdirAll(f.logsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	dateStr := time.Now().Format("20060102")
	logPath := filepath.Join(f.logsDir, "download-"+dateStr+".log")
	return os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

// writeLogHeader writes the download start marker
func (f *YTDLPFetcher) writeLogHeader(file *os.File, url, cmdLine string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	file.WriteString(fmt.Sprintf("\n=== [%s] Fetch: %s ===\n", timestamp, url))
	file.WriteString(fmt.Sprintf("$ %s\n", cmdLine))
}

// writeLogFooter writes the download end marker
func (f *YTDLPFetcher) writeLogFooter(file *os.File, success bool, message string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	status := "SUCCESS"
	if !success {
		status = "FAILED"
	}
	file.WriteString(fmt.Sprintf("[%s] %s: %s\n", timestamp, status, message))
	file.WriteString("=== END ===\n\n")
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
