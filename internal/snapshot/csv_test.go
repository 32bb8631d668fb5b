package snapshot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/redirect-chains/internal/redirect"
)

func TestEncodeWritesHeaderAndJoinedChains(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	err := Encode(&sb, []redirect.Entry{
		{Chain: redirect.Chain{"https://a", "https://b"}, Count: 3},
		{Chain: redirect.Chain{"https://c?x=1,2"}, Count: 1},
	})
	require.NoError(t, err)
	require.Equal(t,
		"Redirect Chain,Occurrences\n"+
			"https://a -> https://b,3\n"+
			"\"https://c?x=1,2\",1\n",
		sb.String())
}

func TestEncodeEmptyTableIsHeaderOnly(t *testing.T) {
	t.Parallel()

	out, err := EncodeBytes(nil)
	require.NoError(t, err)
	require.Equal(t, "Redirect Chain,Occurrences\n", string(out))
}

func TestDecodeRoundTripsEncodedTable(t *testing.T) {
	t.Parallel()

	entries := []redirect.Entry{
		{Chain: redirect.Chain{"https://seed", "https://x", "https://y"}, Count: 7},
		{Chain: redirect.Chain{"https://seed"}, Count: 2},
	}
	out, err := EncodeBytes(entries)
	require.NoError(t, err)

	decoded, err := Decode(strings.NewReader(string(out)))
	require.NoError(t, err)
	require.Equal(t, entries, decoded)
}

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    []redirect.Entry
		wantErr string
	}{
		{name: "empty", input: ""},
		{name: "header only", input: "Redirect Chain,Occurrences\n"},
		{
			name:  "no header",
			input: "https://a -> https://b,4\n",
			want:  []redirect.Entry{{Chain: redirect.Chain{"https://a", "https://b"}, Count: 4}},
		},
		{
			name:  "blank lines skipped",
			input: "Redirect Chain,Occurrences\n\nhttps://a, 2 \n",
			want:  []redirect.Entry{{Chain: redirect.Chain{"https://a"}, Count: 2}},
		},
		{
			name:  "header with padded cells",
			input: "Redirect Chain, Occurrences\n\"https://a -> https://b\", 3\n",
			want:  []redirect.Entry{{Chain: redirect.Chain{"https://a", "https://b"}, Count: 3}},
		},
		{name: "bad count", input: "Redirect Chain,Occurrences\nhttps://a,many\n", wantErr: "invalid occurrences"},
		{name: "zero count", input: "https://a,0\n", wantErr: "invalid occurrences"},
		{name: "missing column", input: "https://a\n", wantErr: "expected 2 columns"},
		{name: "empty chain", input: ",3\n", wantErr: "empty chain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Decode(strings.NewReader(tt.input))
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
