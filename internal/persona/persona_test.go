package persona

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcohefti/specc/internal/checklist"
	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/events"
)

const proposals = `
proposals:
  - persona_id: reviewer
    item_id: a
    field: note
    value: check the retry path
  - persona_id: reviewer
    item_id: a
    field: severity
    value: low
  - persona_id: reviewer
    item_id: missing
    field: note
    value: x
vetoes:
  - persona_id: security
    phase: post_generation
    reason: secrets in logs
`

func TestParse_RejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	_, err := Parse([]byte("proposals: []\nextra: 1\n"))
	assert.Error(t, err)
	_, err = Parse([]byte("proposals:\n  - persona_id: p\n"))
	assert.Error(t, err)
	f, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, f.Proposals)
}

func TestGuard_DropsForbiddenAndRecordsPersonaEvents(t *testing.T) {
	t.Parallel()
	f, err := Parse([]byte(proposals))
	require.NoError(t, err)
	rec := events.NewRecorder()
	items := []checklist.Item{{ID: "a", Text: "a"}}

	rep, err := Guard(f, items, rec, nil)
	require.NoError(t, err)
	require.Len(t, rep.Accepted, 1)
	assert.Equal(t, "note", rep.Accepted[0].Field)
	require.Len(t, rep.Denied, 2)
	require.Len(t, rep.Vetoes, 1)

	evs := rec.Events()
	require.Len(t, evs, 3)
	for _, e := range evs {
		assert.True(t, e.IsPersona())
	}
	assert.Equal(t, codes.GatePersonaMutationDenied, evs[0].GateID)
	assert.Equal(t, events.Diagnostic, evs[0].Outcome)
	assert.Equal(t, codes.GatePersonaVeto, evs[2].GateID)
	assert.Equal(t, events.AuthorityPersona, evs[2].Authority())
	assert.Zero(t, events.Count(evs, events.Refusal), "persona events never count")
}

func TestLog_ChainAndTamperDetection(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "persona", "events.jsonl")
	log := OpenLog(path)
	f, err := Parse([]byte(proposals))
	require.NoError(t, err)
	_, err = Guard(f, []checklist.Item{{ID: "a"}}, events.NewRecorder(), log)
	require.NoError(t, err)

	n, err := log.Verify()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	entries, err := log.Entries()
	require.NoError(t, err)
	assert.Equal(t, genesis, entries[0].PrevHash)
	assert.Equal(t, entries[0].Hash, entries[1].PrevHash)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := append([]byte(nil), raw...)
	for i := range tampered {
		if tampered[i] == 'v' {
			tampered[i] = 'V'
			break
		}
	}
	require.NoError(t, os.WriteFile(path, tampered, 0o644))
	_, err = log.Verify()
	assert.Error(t, err)
}

func TestLog_MasksCredentialsInMessages(t *testing.T) {
	t.Parallel()
	log := OpenLog(filepath.Join(t.TempDir(), "events.jsonl"))
	e, err := log.Append(events.Event{
		GateID:    codes.GatePersonaVeto,
		PersonaID: "ops",
		Outcome:   events.Diagnostic,
		Message:   "veto: rotate ghp_1234567890abcdef first",
	})
	require.NoError(t, err)
	assert.Equal(t, "veto: rotate [REDACTED:GITHUB_TOKEN] first", e.Message)
	n, err := log.Verify()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
