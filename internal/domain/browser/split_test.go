package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "plain list",
			input: "--a,--b,--c",
			want:  []string{"--a", "--b", "--c"},
		},
		{
			name:  "quoted commas are preserved",
			input: `--user-agent="Mozilla/5.0 (X11, Linux)",--lang=en`,
			want:  []string{`--user-agent="Mozilla/5.0 (X11, Linux)"`, "--lang=en"},
		},
		{
			name:  "entries are trimmed",
			input: "  --a , --b  ,--c ",
			want:  []string{"--a", "--b", "--c"},
		},
		{
			name:  "empty input",
			input: "",
			want:  []string{},
		},
		{
			name:  "empty entries are dropped",
			input: ",,--a,, ,",
			want:  []string{"--a"},
		},
		{
			name:  "single argument",
			input: "--single-arg",
			want:  []string{"--single-arg"},
		},
		{
			name:  "spaces around quoted values",
			input: ` --foo , --bar="x, y" , --baz `,
			want:  []string{"--foo", `--bar="x, y"`, "--baz"},
		},
		{
			name:  "escaped quotes toggle like plain quotes",
			input: `--arg="quoted \"inner\" text",--next`,
			want:  []string{`--arg="quoted \"inner\" text"`, "--next"},
		},
		{
			name:  "nested quotes are kept as is",
			input: `--flag="a,"b,c"",--next`,
			want:  []string{`--flag="a,"b`, `c""`, "--next"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitArgs(tt.input))
		})
	}
}
