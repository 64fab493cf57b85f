package main

import (
	"os"
	"path/filepath"
	"strings"
)

// atomicReplaceFile writes data to path using a temporary file and atomic
// rename. When sync is true, it also fsyncs the file and containing
// directory to reduce the risk of losing the last write on crash.
func atomicReplaceFile(path string, data []byte, sync bool) error {
	tmpPath := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if sync {
		if err := f.Sync(); err != nil {
			f.Close()
			_ = os.Remove(tmpPath)
			return err
		}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if sync {
		if err := syncDir(filepath.Dir(path)); err != nil {
			return err
		}
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	err = d.Sync()
	closeErr := d.Close()
	if err != nil {
		return err
	}
	return closeErr
}

// readRecordLine reads a single-value durable record (fingerprint, digest
// marker). A missing or empty file is "no record" rather than an error.
func readRecordLine(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("read record file", "path", path, "error", err)
		}
		return "", false
	}
	value, _, _ := strings.Cut(string(data), "\n")
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

func writeRecordLine(path, value string) error {
	return atomicReplaceFile(path, []byte(value+"\n"), true)
}
