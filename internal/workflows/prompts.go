package workflows

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"stackdocs-backend/internal/extractions"
)

//go:embed prompts/*.txt
var promptFS embed.FS

var (
	extractionSystemPrompt = mustRead("prompts/extraction_system.txt")
	metadataSystemPrompt   = mustRead("prompts/metadata_system.txt")
	metadataTaskPrompt     = mustRead("prompts/metadata_task.txt")
	correctionTemplate     = template.Must(template.New("correction").Parse(mustRead("prompts/correction.txt")))
)

func mustRead(name string) string {
	b, err := promptFS.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("missing prompt %s: %v", name, err))
	}
	return string(b)
}

const readOCRHint = "\n\nStart by using read_ocr to read the document text."

// extractionTask builds the opening user message for an extraction run.
func extractionTask(mode extractions.Mode, fields []extractions.CustomField) string {
	if mode != extractions.ModeCustom {
		return "Extract all relevant data from this document." + readOCRHint
	}
	if len(fields) == 0 {
		return "Extract the requested fields from the document." + readOCRHint
	}
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Description != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", f.Name, f.Description))
		} else {
			lines = append(lines, "- "+f.Name)
		}
	}
	return "Extract these specific fields from the document:\n" + strings.Join(lines, "\n") + readOCRHint
}

func correctionPrompt(instruction string) (string, error) {
	var b strings.Builder
	if err := correctionTemplate.Execute(&b, struct{ Instruction string }{instruction}); err != nil {
		return "", err
	}
	return b.String(), nil
}
