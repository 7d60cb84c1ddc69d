package storage

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Storage is a daily-rotated line writer. Each UTC day gets its own
// <prefix>_YYYY-MM-DD.log file; the previous day's file is gzip-compressed on
// rotation.
type Storage struct {
	outputDir string
	prefix    string
	file      *os.File
	date      string
	mu        sync.Mutex
	stopChan  chan struct{}
	wg        sync.WaitGroup
	now       func() time.Time
}

// New creates a new Storage instance
func New(outputDir, prefix string) *Storage {
	return &Storage{
		outputDir: outputDir,
		prefix:    prefix,
		stopChan:  make(chan struct{}),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start creates the output directory, opens today's file and starts the rotation timer
func (s *Storage) Start() error {
	if err := os.MkdirAll(s.outputDir, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	s.mu.Lock()
	err := s.rotateFile()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.wg.Add(1)
	go s.rotationTimer()

	return nil
}

// Stop closes the current file and stops the rotation timer
func (s *Storage) Stop() error {
	close(s.stopChan)
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

// Write implements io.Writer so the storage can back a logger
func (s *Storage) Write(p []byte) (int, error) {
	if err := s.WriteMessage(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteMessage writes a line to the current file
func (s *Storage) WriteMessage(message []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil || s.date != s.now().Format("2006-01-02") {
		if err := s.rotateLocked(); err != nil {
			return err
		}
	}

	// Check if message already ends with newline
	if len(message) > 0 && message[len(message)-1] == '\n' {
		_, err := s.file.Write(message)
		return err
	}

	_, err := s.file.Write(append(message, '\n'))
	return err
}

// CurrentPath returns the path of the file currently written to
func (s *Storage) CurrentPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pathFor(s.date)
}

// rotationTimer handles daily rotation at midnight UTC
func (s *Storage) rotationTimer() {
	defer s.wg.Done()

	for {
		now := time.Now().UTC()
		nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
		waitTime := nextMidnight.Sub(now)

		select {
		case <-time.After(waitTime):
			s.mu.Lock()
			err := s.rotateLocked()
			s.mu.Unlock()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error during rotation: %v\n", err)
			}
		case <-s.stopChan:
			return
		}
	}
}

// rotateLocked closes the current file, compresses it and opens a new one.
// Callers must hold s.mu.
func (s *Storage) rotateLocked() error {
	previous := ""
	if s.file != nil {
		previous = s.pathFor(s.date)
		if err := s.file.Close(); err != nil {
			return fmt.Errorf("failed to close current file: %w", err)
		}
		s.file = nil
	}

	if err := s.rotateFile(); err != nil {
		return err
	}

	if previous != "" && previous != s.pathFor(s.date) {
		if err := compressFile(previous); err != nil {
			return fmt.Errorf("failed to compress file: %w", err)
		}
	}
	return nil
}

// rotateFile opens the file for the current date. Callers must hold s.mu.
func (s *Storage) rotateFile() error {
	date := s.now().Format("2006-01-02")

	//nolint:gosec // path is controlled by application logic
	file, err := os.OpenFile(s.pathFor(date), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	s.file = file
	s.date = date
	return nil
}

func (s *Storage) pathFor(date string) string {
	return filepath.Join(s.outputDir, fmt.Sprintf("%s_%s.log", s.prefix, date))
}

// compressFile gzips path into path.gz and removes the original
func compressFile(path string) error {
	//nolint:gosec // path is controlled by application logic
	source, err := os.Open(path)
	if err != nil {
		return err
	}
	defer source.Close()

	target, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer target.Close()

	gzipWriter := gzip.NewWriter(target)
	if _, err := io.Copy(gzipWriter, source); err != nil {
		return err
	}

	// Close the gzip writer to ensure all data is written
	if err := gzipWriter.Close(); err != nil {
		return err
	}

	return os.Remove(path)
}
