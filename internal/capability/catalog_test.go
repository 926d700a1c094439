package capability

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnown(t *testing.T) {
	assert.True(t, Known(UseBot))
	assert.True(t, Known(ViewHelp))
	assert.False(t, Known(Capability("launch-missiles")))
	assert.False(t, Known(Capability("")))
}

func TestParseSetDropsUnknownNames(t *testing.T) {
	set, dropped := ParseSet([]string{"use-bot", "Run-Analysis", " consult ", "frobnicate", "view-help", ""})

	assert.True(t, set.Has(UseBot))
	assert.True(t, set.Has(RunAnalysis))
	assert.True(t, set.Has(Consult))
	assert.True(t, set.Has(ViewHelp))
	assert.Equal(t, 4, set.Len())
	assert.Equal(t, []string{"frobnicate"}, dropped)
}

func TestParseSetCollapsesDuplicates(t *testing.T) {
	set, dropped := ParseSet([]string{"use-bot", "use-bot", "USE-BOT"})
	assert.Equal(t, 1, set.Len())
	assert.Empty(t, dropped)
}

func TestUnionDoesNotMutateInputs(t *testing.T) {
	a := NewSet(UseBot)
	b := NewSet(Consult)

	merged := a.Union(b)

	assert.Equal(t, 2, merged.Len())
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len())
}

func TestEqual(t *testing.T) {
	assert.True(t, NewSet(UseBot, Consult).Equal(NewSet(Consult, UseBot)))
	assert.False(t, NewSet(UseBot).Equal(NewSet(Consult)))
	assert.False(t, NewSet(UseBot).Equal(NewSet(UseBot, Consult)))
	assert.True(t, NewSet().Equal(NewSet()))
}

func TestJSONRoundTrip(t *testing.T) {
	set := NewSet(ViewHelp, UseBot, RunAnalysis)

	data, err := json.Marshal(set)
	require.NoError(t, err)
	assert.JSONEq(t, `["run-analysis","use-bot","view-help"]`, string(data))

	var decoded Set
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, set.Equal(decoded))
}

func TestUnmarshalFiltersUnknown(t *testing.T) {
	var decoded Set
	require.NoError(t, json.Unmarshal([]byte(`["use-bot","bogus"]`), &decoded))
	assert.True(t, decoded.Equal(NewSet(UseBot)))
}

func TestFullSetCoversCatalog(t *testing.T) {
	full := FullSet()
	for _, c := range All() {
		assert.True(t, full.Has(c), "catalog capability %s missing from full set", c)
	}
	assert.Equal(t, len(All()), full.Len())
}

func TestDefaults(t *testing.T) {
	assert.True(t, Defaults().Equal(NewSet(ViewHelp)))
	assert.True(t, AdminOnlyDefaults().Equal(NewSet(ManageConfig, ManagePermissions)))
}
