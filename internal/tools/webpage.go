package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	webpageTimeout   = 20 * time.Second
	webpageMaxOutput = 40000
	webpageUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_7_2) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// VisitWebpageTool fetches a URL and returns its content as markdown.
// Fetch failures are reported in the output so the model can react.
type VisitWebpageTool struct {
	client *http.Client
}

func NewVisitWebpageTool() *VisitWebpageTool {
	return &VisitWebpageTool{client: &http.Client{Timeout: webpageTimeout}}
}

func (t *VisitWebpageTool) Name() string { return "visit_webpage" }

func (t *VisitWebpageTool) Description() string {
	return "Visit a webpage at the given URL and return its text content as markdown."
}

func (t *VisitWebpageTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL of the webpage to visit",
			},
		},
		"required": []string{"url"},
	}
}

func (t *VisitWebpageTool) Execute(ctx context.Context, args map[string]any) *Result {
	rawURL, _ := args["url"].(string)
	if rawURL == "" {
		return ErrorResult("url is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return ErrorResult(fmt.Sprintf("Invalid URL: %s", rawURL))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error fetching the webpage: %s", err))
	}
	req.Header.Set("User-Agent", webpageUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		if strings.Contains(err.Error(), "context deadline exceeded") ||
			strings.Contains(err.Error(), "Client.Timeout") {
			return ErrorResult("The request timed out")
		}
		return ErrorResult(fmt.Sprintf("Error fetching the webpage: %s", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return ErrorResult(fmt.Sprintf("Error fetching the webpage: HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(webpageMaxOutput*4)))
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error fetching the webpage: %s", err))
	}

	content := strings.TrimSpace(htmlToMarkdown(string(body)))
	if content == "" {
		return ErrorResult("No content found in the webpage")
	}
	return NewResult(truncateContent(content, webpageMaxOutput))
}

// truncateContent clips content to maxLength with an inline marker.
func truncateContent(content string, maxLength int) string {
	if len(content) <= maxLength {
		return content
	}
	half := maxLength / 2
	return content[:half] +
		fmt.Sprintf("\n..._This content has been truncated to stay below %d characters_...\n", maxLength) +
		content[len(content)-half:]
}
