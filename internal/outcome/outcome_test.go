package outcome

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcome_Line(t *testing.T) {
	ts := time.Date(2026, 3, 4, 10, 15, 0, 0, time.UTC)

	tests := []struct {
		name string
		o    Outcome
		want string
	}{
		{
			name: "plain",
			o:    New(ts, KindReplaced, "py311", "replaced ssl/cacert.pem"),
			want: "2026-03-04T10:15:00Z REPLACED py311 replaced ssl/cacert.pem\n",
		},
		{
			name: "env with space is quoted",
			o:    New(ts, KindNotFoundAfterWait, "my env", "cacert.pem not found after 60 seconds"),
			want: "2026-03-04T10:15:00Z NOT_FOUND_AFTER_WAIT \"my env\" cacert.pem not found after 60 seconds\n",
		},
		{
			name: "multi-line message is folded",
			o:    New(ts, KindFailed, "py311", "copy failed:\npermission denied\n"),
			want: "2026-03-04T10:15:00Z FAILED py311 copy failed: permission denied\n",
		},
		{
			name: "empty message",
			o:    New(ts, KindNotPresent, "base", ""),
			want: "2026-03-04T10:15:00Z NOT_PRESENT base\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.o.Line())
		})
	}
}

func TestParse(t *testing.T) {
	ts := time.Date(2026, 3, 4, 10, 15, 0, 0, time.UTC)

	for _, o := range []Outcome{
		New(ts, KindReplaced, "py311", "replaced ssl/cacert.pem"),
		New(ts, KindNotFoundAfterWait, "my env", "cacert.pem not found after 60 seconds"),
		New(ts, KindNotPresent, "base", ""),
		New(ts, KindAlreadyUpToDate, `"odd`, "already current"),
	} {
		got, err := Parse(o.Line())
		require.NoError(t, err, o.Line())
		assert.True(t, o.Time.Equal(got.Time))
		assert.Equal(t, o.Kind, got.Kind)
		assert.Equal(t, o.Env, got.Env)
		assert.Equal(t, o.Message, got.Message)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		errMsg string
	}{
		{"empty", "", "missing kind"},
		{"bad timestamp", "yesterday REPLACED py311 done", "timestamp"},
		{"unknown kind", "2026-03-04T10:15:00Z EXPLODED py311 boom", "unknown kind"},
		{"missing env", "2026-03-04T10:15:00Z REPLACED", "missing environment"},
		{"truncated quote", "2026-03-04T10:15:00Z REPLACED \"my env", "environment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.line)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestKind_Valid(t *testing.T) {
	for _, k := range Kinds {
		assert.True(t, k.Valid(), k)
	}
	assert.False(t, Kind("replaced").Valid())
}
