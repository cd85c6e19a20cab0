package extract

import (
	"reflect"
	"strings"
	"testing"
)

func TestCodeBlocks(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "empty input",
			text: "",
			want: nil,
		},
		{
			name: "no fences",
			text: "SELECTED_TOOL: GLOBAL_QUOTE\nno code here",
			want: nil,
		},
		{
			name: "single block",
			text: "Here you go:\n```python\nprint('hi')\n```\ndone",
			want: []string{"print('hi')"},
		},
		{
			name: "multiple blocks in document order",
			text: "```python\na = 1\n```\ntext\n```python\nb = 2\nprint(b)\n```",
			want: []string{"a = 1", "b = 2\nprint(b)"},
		},
		{
			name: "unterminated last block dropped",
			text: "```python\nfirst()\n```\n```python\nsecond()\n",
			want: []string{"first()"},
		},
		{
			name: "indented fences and extra whitespace",
			text: "  ```python  \n    x = 1\n   ```   \n",
			want: []string{"    x = 1"},
		},
		{
			name: "open marker with trailing text",
			text: "```python3\nprint(1)\n```",
			want: []string{"print(1)"},
		},
		{
			name: "non-python fence ignored",
			text: "```bash\nls\n```\n```python\nprint(2)\n```",
			want: []string{"print(2)"},
		},
		{
			name: "empty block dropped",
			text: "```python\n```\n```python\nprint(3)\n```",
			want: []string{"print(3)"},
		},
		{
			name: "crlf line endings",
			text: "```python\r\nprint(4)\r\n```\r\n",
			want: []string{"print(4)"},
		},
		{
			name: "close marker with trailing text does not close",
			text: "```python\nprint(5)\n``` not a close\n```",
			want: []string{"print(5)\n``` not a close"},
		},
		{
			name: "reopen inside block restarts it",
			text: "```python\nlost()\n```python\nkept()\n```",
			want: []string{"kept()"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CodeBlocks(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CodeBlocks() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCodeBlocks_CountProperty(t *testing.T) {
	for n := 0; n < 6; n++ {
		var b strings.Builder
		for i := 0; i < n; i++ {
			b.WriteString("prose line\n```python\n")
			b.WriteString("print(")
			b.WriteString(strings.Repeat("x", i+1))
			b.WriteString(")\n```\n")
		}

		wellFormed := b.String()
		if got := len(CodeBlocks(wellFormed)); got != n {
			t.Errorf("n=%d well-formed: got %d blocks", n, got)
		}

		if n > 0 {
			unterminated := wellFormed + "```python\nprint('dangling')\n"
			blocks := CodeBlocks(unterminated)
			if len(blocks) != n {
				t.Errorf("n=%d with dangling fence: got %d blocks, want %d", n, len(blocks), n)
			}
			for i, block := range blocks {
				want := "print(" + strings.Repeat("x", i+1) + ")"
				if block != want {
					t.Errorf("block %d = %q, want %q", i, block, want)
				}
			}
		}
	}
}

func TestFirstCodeBlock(t *testing.T) {
	if _, ok := FirstCodeBlock("nothing"); ok {
		t.Error("expected no block")
	}
	got, ok := FirstCodeBlock("```python\none\n```\n```python\ntwo\n```")
	if !ok || got != "one" {
		t.Errorf("FirstCodeBlock() = %q, %v", got, ok)
	}
}

func TestSelectedTool(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{name: "plain", text: "SELECTED_TOOL: GLOBAL_QUOTE", want: "GLOBAL_QUOTE", wantOK: true},
		{name: "after prose", text: "I looked at the tools.\n\nSELECTED_TOOL: EARNINGS_CALL_TRANSCRIPT\n", want: "EARNINGS_CALL_TRANSCRIPT", wantOK: true},
		{name: "indented with extra spaces", text: "   SELECTED_TOOL:     NEWS_SENTIMENT   ", want: "NEWS_SENTIMENT", wantOK: true},
		{name: "mixed case label", text: "Selected_Tool: SYMBOL_SEARCH", want: "SYMBOL_SEARCH", wantOK: true},
		{name: "bracketed", text: "SELECTED_TOOL: [COMPANY_OVERVIEW]", want: "COMPANY_OVERVIEW", wantOK: true},
		{name: "bold markdown", text: "**SELECTED_TOOL:** `TIME_SERIES_DAILY`", want: "TIME_SERIES_DAILY", wantOK: true},
		{name: "trailing explanation", text: "SELECTED_TOOL: EARNINGS (quarterly data)", want: "EARNINGS", wantOK: true},
		{name: "first line wins", text: "SELECTED_TOOL: A\nSELECTED_TOOL: B", want: "A", wantOK: true},
		{name: "empty value", text: "SELECTED_TOOL:   ", wantOK: false},
		{name: "missing", text: "I think GLOBAL_QUOTE is best", wantOK: false},
		{name: "empty text", text: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SelectedTool(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("SelectedTool() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToolBullets(t *testing.T) {
	stdout := "Available tools: 5 total\n  - EARNINGS\n  - EARNINGS_CALENDAR\n- GLOBAL_QUOTE\n  - EARNINGS\n  - not a tool name\n* NEWS_SENTIMENT\n  -SMA\n  - TIME_SERIES_DAILY\r\n"
	got := ToolBullets(stdout)
	want := []string{"EARNINGS", "EARNINGS_CALENDAR", "GLOBAL_QUOTE", "TIME_SERIES_DAILY"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ToolBullets() = %q, want %q", got, want)
	}

	if got := ToolBullets("Error discovering tools: permission denied"); got != nil {
		t.Errorf("expected nil for no bullets, got %q", got)
	}
}

func TestInterfaceSummary(t *testing.T) {
	text := "Reading the file.\n\nTOOL: GLOBAL_QUOTE\nDESCRIPTION: latest price\nPARAMETERS:\n  - symbol (REQUIRED)\n\nEXAMPLE_CALL: GLOBAL_QUOTE({})"
	got, ok := InterfaceSummary(text)
	if !ok {
		t.Fatal("expected summary")
	}
	want := "TOOL: GLOBAL_QUOTE\nDESCRIPTION: latest price\nPARAMETERS:\n  - symbol (REQUIRED)"
	if got != want {
		t.Errorf("InterfaceSummary() = %q, want %q", got, want)
	}

	if _, ok := InterfaceSummary("no header"); ok {
		t.Error("expected no summary")
	}
}
