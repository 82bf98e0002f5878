// submit_task.go defines the submit_task and submit_task_with_files tool
// types and turns file arguments into uploads.
package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SubmitTaskArgs is the input for the submit_task tool.
type SubmitTaskArgs struct {
	Description string `json:"description" jsonschema:"What the desktop agent should do, in plain language"`
	Priority    string `json:"priority,omitempty" jsonschema:"LOW, MEDIUM, HIGH or URGENT. Defaults to the user preference."`
	// WaitForCompletion defaults to the user's default_wait_for_completion.
	WaitForCompletion *bool `json:"wait_for_completion,omitempty" jsonschema:"Block until the task finishes, needs help, or times out"`
}

func (a SubmitTaskArgs) request() SubmitRequest {
	return SubmitRequest{Description: a.Description, Priority: a.Priority, Wait: a.WaitForCompletion}
}

// FileArg is one file attached to submit_task_with_files. Either Path, or
// Filename plus base64 Content, must be set.
type FileArg struct {
	Path        string `json:"path,omitempty"         jsonschema:"Local path of the file to upload"`
	Filename    string `json:"filename,omitempty"     jsonschema:"File name when sending inline content"`
	Content     string `json:"content,omitempty"      jsonschema:"Base64-encoded file content"`
	ContentType string `json:"content_type,omitempty" jsonschema:"MIME type. Detected from the content when empty."`
}

// SubmitTaskWithFilesArgs is the input for the submit_task_with_files tool.
type SubmitTaskWithFilesArgs struct {
	Description       string    `json:"description" jsonschema:"What the desktop agent should do with the files"`
	Priority          string    `json:"priority,omitempty" jsonschema:"LOW, MEDIUM, HIGH or URGENT. Defaults to the user preference."`
	WaitForCompletion *bool     `json:"wait_for_completion,omitempty" jsonschema:"Block until the task finishes, needs help, or times out"`
	Files             []FileArg `json:"files" jsonschema:"Files the agent needs for the task"`
}

func (a SubmitTaskWithFilesArgs) request() SubmitRequest {
	return SubmitRequest{Description: a.Description, Priority: a.Priority, Wait: a.WaitForCompletion}
}

// loadFiles reads or decodes every file argument. Errors are collected so
// the caller sees all bad entries at once.
func loadFiles(args []FileArg) ([]UploadFile, error) {
	var (
		files []UploadFile
		errs  []error
	)
	for i, a := range args {
		f, err := a.load()
		if err != nil {
			errs = append(errs, fmt.Errorf("file %d: %w", i+1, err))
			continue
		}
		files = append(files, f)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrValidation, errors.Join(errs...))
	}
	return files, nil
}

func (a FileArg) load() (UploadFile, error) {
	switch {
	case a.Path != "":
		data, err := os.ReadFile(a.Path)
		if err != nil {
			return UploadFile{}, err
		}
		name := a.Filename
		if name == "" {
			name = filepath.Base(a.Path)
		}
		return UploadFile{Filename: name, ContentType: a.ContentType, Content: data}, nil
	case a.Filename != "":
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(a.Content))
		if err != nil {
			return UploadFile{}, fmt.Errorf("%s: invalid base64 content: %w", a.Filename, err)
		}
		return UploadFile{Filename: a.Filename, ContentType: a.ContentType, Content: data}, nil
	}
	return UploadFile{}, errors.New("either path or filename with content is required")
}
