package build

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyRequestMode(t *testing.T) {
	tests := []struct {
		name    string
		request string
		want    Mode
	}{
		{"plain feature request", "add a dark mode toggle to the settings page", ModeDevelopment},
		{"empty request", "", ModeDevelopment},
		{"explicit deploy", "deploy my landing page", ModeProduction},
		{"publish wording", "please Publish this to my users", ModeProduction},
		{"production wording", "make it production ready and ship it", ModeProduction},
		{"go live phrasing", "I want to go live today", ModeProduction},
		{"chinese publish wording", "帮我把这个页面发布出去", ModeProduction},
		{"deployment as noun mid-sentence", "set up the deployment pipeline", ModeProduction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyRequestMode(tt.request))
		})
	}
}

func TestCompileIssueString(t *testing.T) {
	withLine := CompileIssue{File: "app.js", Line: 12, Message: "unexpected token"}
	assert.Equal(t, "app.js:12: unexpected token", withLine.String())

	withoutLine := CompileIssue{File: "styles.css", Message: "unterminated block"}
	assert.Equal(t, "styles.css: unterminated block", withoutLine.String())
}

func TestResultIssueSummary(t *testing.T) {
	r := &Result{Issues: []CompileIssue{
		{File: "app.js", Line: 3, Message: "x is not defined"},
		{File: "index.html", Message: "unclosed tag"},
	}}
	assert.Equal(t, "app.js:3: x is not defined\nindex.html: unclosed tag", r.IssueSummary())
}
