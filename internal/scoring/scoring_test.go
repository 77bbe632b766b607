package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"anime-streamer/pkg/types"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name    string
		release string
		title   string
		episode int
		reject  string
	}{
		{"accepted 720p", "[SubsPlease] Dandadan - 03 (720p) [8A1B2C3D].mkv", "Dandadan", 3, ""},
		{"accepted 1080p unpadded", "[Erai-raws] Dandadan - 3 [1080p][Multiple Subtitle]", "Dandadan", 3, ""},
		{"wrong show", "[SubsPlease] Kusuriya no Hitorigoto - 03 (720p)", "Dandadan", 3, RejectTitle},
		{"episode absent", "[SubsPlease] Dandadan - 04 (720p)", "Dandadan", 9, RejectEpisode},
		{"no quality token", "[Judas] Dandadan - 03 [HEVC]", "Dandadan", 3, RejectQuality},
		{"tail after quality ignored", "[SubsPlease] Dandadan - 05 (720p) [0300AB]", "Dandadan", 3, RejectEpisode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Evaluate(types.Candidate{Name: tt.release}, tt.title, tt.episode, DefaultParams)
			assert.Equal(t, tt.reject, v.Reject, "similarity=%.3f cleaned=%q", v.Similarity, v.Cleaned)
		})
	}
}

func TestEvaluateSymbolsDoNotBecomeDigits(t *testing.T) {
	c := types.Candidate{Name: "[SubsPlease] Ranma ½ - 05 (720p) [ABCD].mkv"}

	v := Evaluate(c, "Ranma ½", 12, DefaultParams)
	assert.Equal(t, "subsplease ranma 05 720p", v.Cleaned)
	assert.Equal(t, RejectEpisode, v.Reject)

	v = Evaluate(c, "Ranma ½", 5, DefaultParams)
	assert.True(t, v.Accepted(), "similarity=%.3f cleaned=%q", v.Similarity, v.Cleaned)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	c := types.Candidate{Name: "[SubsPlease] Sousou no Frieren - 12 (720p) [F00D].mkv"}
	a := Evaluate(c, "Sousou no Frieren", 12, DefaultParams)
	b := Evaluate(c, "Sousou no Frieren", 12, DefaultParams)
	assert.Equal(t, a, b)
	assert.True(t, a.Accepted())
}

func TestFirstAcceptedIgnoresSeeders(t *testing.T) {
	cands := []types.Candidate{
		{Name: "[Other] Completely Unrelated - 03 (720p)", Seeders: 9000},
		{Name: "[A] Dandadan - 03 (720p)", Seeders: 5, Locator: "magnet:?a"},
		{Name: "[B] Dandadan - 03 (1080p)", Seeders: 500, Locator: "magnet:?b"},
	}
	got, v, ok := FirstAccepted(cands, "Dandadan", 3, DefaultParams)
	assert.True(t, ok)
	assert.Equal(t, "magnet:?a", got.Locator)
	assert.True(t, v.Similarity > DefaultParams.TitleThreshold)

	_, _, ok = FirstAccepted(nil, "Dandadan", 3, DefaultParams)
	assert.False(t, ok)
}
