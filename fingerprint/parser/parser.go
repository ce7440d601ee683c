// Package parser invokes a user-supplied shell script to derive a file's
// song metadata (title, singer id, optional first-performance date) from
// its name, and parses the script's JSON response.
package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/cwbudde/soundtrace/fingerprint/model"
)

// Date is a calendar date as reported by the parser script, normalized to
// dd/mm/yyyy before storage.
type Date struct {
	Day   int `json:"day"`
	Month int `json:"month"`
	Year  int `json:"year"`
}

// String renders the date as dd/mm/yyyy.
func (d Date) String() string {
	return fmt.Sprintf("%02d/%02d/%04d", d.Day, d.Month, d.Year)
}

// Result is the parsed, successful outcome of running the filename parser:
// enough to build a recording's metadata.
type Result struct {
	Title    string
	SingerID model.SingerID
	Date     *Date
}

// response mirrors the two discriminated JSON shapes the script may emit.
// Both carry "success"; the error case additionally carries "error", and
// the success case carries "title", "singer_id", and an optional "date".
type response struct {
	Success  bool    `json:"success"`
	Title    string  `json:"title"`
	SingerID int16   `json:"singer_id"`
	Date     *Date   `json:"date"`
	Error    *string `json:"error"`
}

// Run invokes `sh <script> <fileName>`, and parses its stdout (with
// trailing whitespace stripped) as a parser response. A successful
// response is returned as a Result; an unsuccessful one is returned as an
// error carrying the script's reported message.
func Run(ctx context.Context, script, fileName string) (Result, error) {
	cmd := exec.CommandContext(ctx, "sh", script, fileName)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Result{}, fmt.Errorf("parser: run %s %s: %w (stderr: %s)", script, fileName, err, stderr.String())
	}

	trimmed := strings.TrimRight(stdout.String(), " \t\r\n")

	var resp response
	if err := json.Unmarshal([]byte(trimmed), &resp); err != nil {
		return Result{}, fmt.Errorf("parser: parse response for %s: %w", fileName, err)
	}

	if !resp.Success {
		msg := "unknown error"
		if resp.Error != nil {
			msg = *resp.Error
		}
		return Result{}, fmt.Errorf("parser: script reported failure for %s: %s", fileName, msg)
	}

	if resp.Title == "" {
		return Result{}, fmt.Errorf("parser: script reported success but no title for %s", fileName)
	}

	return Result{
		Title:    resp.Title,
		SingerID: model.SingerID(resp.SingerID),
		Date:     resp.Date,
	}, nil
}
