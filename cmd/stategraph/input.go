package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/BaSui01/stategraph/pipelines/travel"
)

// terminalInput 在终端逐项询问缺失字段，实现 workflow.InputProvider
type terminalInput struct {
	r *bufio.Reader
	w io.Writer
}

func newTerminalInput(r io.Reader, w io.Writer) *terminalInput {
	if br, ok := r.(*bufio.Reader); ok {
		return &terminalInput{r: br, w: w}
	}
	return &terminalInput{r: bufio.NewReader(r), w: w}
}

var fieldLabels = map[string]string{
	travel.City.Name():      "city",
	travel.StartDate.Name(): "start date (YYYY-MM-DD)",
	travel.EndDate.Name():   "end date (YYYY-MM-DD)",
}

func fieldLabel(field string) string {
	if l, ok := fieldLabels[field]; ok {
		return l
	}
	return strings.ReplaceAll(field, "_", " ")
}

// PromptForMissing 读取一行；空行视为未提供
func (t *terminalInput) PromptForMissing(ctx context.Context, field string) (string, error) {
	return t.ask(ctx, fmt.Sprintf("Please enter %s: ", fieldLabel(field)))
}

func (t *terminalInput) ask(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(t.w, prompt)
	line, err := t.r.ReadString('\n')
	line = strings.TrimSpace(line)
	if line != "" {
		return line, nil
	}
	if err != nil {
		return "", err
	}
	return "", fmt.Errorf("no value entered")
}
