package app

import (
	"compress/gzip"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	logMaxSize    = 10 << 20
	logMaxBackups = 10
)

var (
	botTokenRegex    = regexp.MustCompile(`\d{8,10}:[A-Za-z0-9_-]{35}`)
	postgresURLRegex = regexp.MustCompile(`postgres(?:ql)?://\S+`)
)

// logSink is one append-only log file that rotates by size or by day.
// Rotated files are renamed to <prefix>-<stamp>.log and gzipped in the background.
type logSink struct {
	path   string
	prefix string
	file   *os.File
}

func (s *logSink) open() error {
	if s.file != nil {
		return nil
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	s.file = f
	return nil
}

func (s *logSink) close() {
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
}

// writer returns nil for a sink whose file could not be opened.
func (s *logSink) writer() io.Writer {
	if s.file == nil {
		return nil
	}
	return s.file
}

func (s *logSink) needsRotation(now time.Time) bool {
	info, err := os.Stat(s.path)
	if err != nil || info.Size() == 0 {
		return false
	}
	return info.Size() >= logMaxSize || !sameDay(info.ModTime(), now)
}

func (s *logSink) rotate(now time.Time) error {
	if !s.needsRotation(now) {
		return nil
	}
	wasOpen := s.file != nil
	s.close()

	dir := filepath.Dir(s.path)
	rotated := filepath.Join(dir, s.prefix+"-"+now.Format("20060102-150405")+".log")
	if err := os.Rename(s.path, rotated); err != nil {
		return err
	}
	safeGo("log-compress-"+s.prefix, func() { compressLog(rotated) })
	pruneBackups(dir, s.prefix, logMaxBackups)

	if wasOpen {
		return s.open()
	}
	return nil
}

var (
	logMu        sync.Mutex
	mainSink     = &logSink{path: logFilePath, prefix: "bot"}
	errSink      = &logSink{path: errLogPath, prefix: "errors"}
	appStartedAt time.Time
)

func InitLogger() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.SetPrefix("PNLBOT ")

	logMu.Lock()
	defer logMu.Unlock()

	if mainSink.file != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(mainSink.path), 0755); err != nil {
		log.Printf("⚠️ cannot create log directory: %v", err)
	}
	now := time.Now()
	for _, s := range []*logSink{mainSink, errSink} {
		if err := s.rotate(now); err != nil {
			log.Printf("⚠️ rotate %s: %v", s.path, err)
		}
		if err := s.open(); err != nil {
			log.Printf("⚠️ cannot open %s: %v", s.path, err)
		}
	}
	log.SetOutput(newLevelWriter(mainSink.writer(), errSink.writer()))
}

func CloseLogger() {
	logMu.Lock()
	defer logMu.Unlock()
	log.SetOutput(os.Stdout)
	mainSink.close()
	errSink.close()
}

// RotateLogsIfNeeded is called from housekeeping.
func RotateLogsIfNeeded() {
	logMu.Lock()
	defer logMu.Unlock()

	now := time.Now()
	rotated := false
	for _, s := range []*logSink{mainSink, errSink} {
		if !s.needsRotation(now) {
			continue
		}
		if err := s.rotate(now); err != nil {
			log.Printf("⚠️ rotate %s: %v", s.path, err)
		}
		rotated = true
	}
	if rotated {
		log.SetOutput(newLevelWriter(mainSink.writer(), errSink.writer()))
	}
}

func markStart() {
	appStartedAt = time.Now()
}

func safeGo(name string, fn func()) {
	go func() {
		defer recoverPanic(name)
		fn()
	}()
}

func recoverPanic(name string) {
	if r := recover(); r != nil {
		log.Printf("💥 PANIC [%s]: %v\n%s", name, r, string(debug.Stack()))
	}
}

// pruneBackups keeps the newest keep rotated files for prefix.
func pruneBackups(dir, prefix string, keep int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	type backup struct {
		name string
		mod  time.Time
	}
	var backups []backup
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix+"-") {
			continue
		}
		if ext := filepath.Ext(name); ext != ".log" && ext != ".gz" {
			continue
		}
		if info, err := e.Info(); err == nil {
			backups = append(backups, backup{name: name, mod: info.ModTime()})
		}
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].mod.After(backups[j].mod) })
	for i := keep; i < len(backups); i++ {
		_ = os.Remove(filepath.Join(dir, backups[i].name))
	}
}

// levelWriter tees every line to out and copies warnings/errors to err.
// Secrets are masked before any sink sees the line.
type levelWriter struct {
	out io.Writer
	err io.Writer
}

func newLevelWriter(mainFile, errFile io.Writer) io.Writer {
	w := &levelWriter{out: os.Stdout, err: errFile}
	if mainFile != nil {
		w.out = io.MultiWriter(os.Stdout, mainFile)
	}
	return w
}

func (w *levelWriter) Write(p []byte) (int, error) {
	line := maskSensitive(string(p))
	_, _ = io.WriteString(w.out, line)
	if w.err != nil && isErrorLine(line) {
		_, _ = io.WriteString(w.err, line)
	}
	return len(p), nil
}

func isErrorLine(line string) bool {
	for _, marker := range []string{"⚠️", "❌", "PANIC", "ERROR"} {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

func maskSensitive(s string) string {
	s = botTokenRegex.ReplaceAllString(s, "[BOT_TOKEN_MASKED]")
	return postgresURLRegex.ReplaceAllString(s, "postgresql://***")
}

func compressLog(path string) {
	in, err := os.Open(path)
	if err != nil {
		return
	}
	defer in.Close()

	out, err := os.Create(path + ".gz")
	if err != nil {
		return
	}
	gz := gzip.NewWriter(out)
	_, copyErr := io.Copy(gz, in)
	closeErr := gz.Close()
	_ = out.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(path + ".gz")
		return
	}
	_ = os.Remove(path)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
