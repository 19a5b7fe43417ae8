package cmd

import (
	"bytes"
	"io"
	"os"
	"testing"
)

// captureOutput runs fn with os.Stdout redirected and returns what it printed
func captureOutput(t testing.TB, fn func()) string {
	t.Helper()
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}

	copied := make(chan string, 1)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, reader)
		_ = reader.Close()
		copied <- buf.String()
	}()

	original := os.Stdout
	os.Stdout = writer
	func() {
		defer func() { os.Stdout = original }()
		fn()
	}()

	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close write pipe: %v", err)
	}
	return <-copied
}
