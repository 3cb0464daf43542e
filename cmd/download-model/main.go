// Command download-model exports the st-codesearch-distilroberta-base
// embedding model to ONNX so the local hugot embedder can load it.
//
// The Python export script is embedded in the binary, so the command
// works from a bare `go install`. It needs uv on PATH and Python >=3.10.
//
// Usage: download-model <dest>
package main

import (
	_ "embed"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

//go:embed convert-model.py
var exportScript []byte

const attempts = 4

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: download-model <dest>")
		os.Exit(2)
	}
	if err := run(os.Args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "download-model: %v\n", err)
		os.Exit(1)
	}
}

func run(dest string) error {
	if modelPresent(dest) {
		fmt.Printf("model already present at %s\n", dest)
		return nil
	}

	script, err := writeScript()
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(script) }()

	fmt.Printf("exporting model to %s...\n", dest)

	// Model downloads flake; retry with backoff before giving up.
	delay := 2 * time.Second
	for i := range attempts {
		if i > 0 {
			fmt.Fprintf(os.Stderr, "retrying in %s: %v\n", delay, err)
			time.Sleep(delay)
			delay *= 2
		}

		cmd := exec.Command("uv", "run", script, dest)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err = cmd.Run(); err == nil {
			fmt.Printf("model ready at %s\n", dest)
			return nil
		}
	}
	return fmt.Errorf("export model: %w", err)
}

// modelPresent reports whether both files the embedder loads exist.
func modelPresent(dest string) bool {
	for _, rel := range []string{"tokenizer.json", filepath.Join("onnx", "model.onnx")} {
		if _, err := os.Stat(filepath.Join(dest, rel)); err != nil {
			return false
		}
	}
	return true
}

// writeScript materializes the embedded export script for uv to run.
func writeScript() (string, error) {
	tmp, err := os.CreateTemp("", "export-model-*.py")
	if err != nil {
		return "", fmt.Errorf("create temp script: %w", err)
	}
	if _, err := tmp.Write(exportScript); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write temp script: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp script: %w", err)
	}
	return tmp.Name(), nil
}
