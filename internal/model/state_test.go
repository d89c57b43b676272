package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatePatch_Apply(t *testing.T) {
	cursor := int64(500)
	running := true
	st := SourceState{SourceID: 1, StatusMessage: "old", RowsFetched: 10}

	patch := StatePatch{
		SourceID:        1,
		LastMaxRecordID: &cursor,
		IsRunning:       &running,
	}
	patch.Apply(&st)

	// Set fields land, unset fields survive.
	assert.Equal(t, int64(500), *st.LastMaxRecordID)
	assert.True(t, st.IsRunning)
	assert.Equal(t, "old", st.StatusMessage)
	assert.Equal(t, 10, st.RowsFetched)

	fetched := 42
	now := time.Now().UTC()
	StatePatch{RowsFetched: &fetched, LastSyncAt: &now}.Apply(&st)
	assert.Equal(t, 42, st.RowsFetched)
	assert.Equal(t, now, *st.LastSyncAt)
	assert.Equal(t, int64(500), *st.LastMaxRecordID)
}

func TestPlatformValid(t *testing.T) {
	assert.True(t, PlatformJSONDataset.Valid())
	assert.True(t, PlatformFeatureService.Valid())
	assert.True(t, PlatformOther.Valid())
	assert.False(t, Platform("csv").Valid())
}

func TestSourceConfigString(t *testing.T) {
	src := Source{Config: map[string]any{"dataset_id": "abcd", "layer_id": float64(2)}}
	assert.Equal(t, "abcd", src.ConfigString("dataset_id"))
	assert.Empty(t, src.ConfigString("layer_id"))
	assert.Empty(t, src.ConfigString("missing"))
	assert.Empty(t, Source{}.ConfigString("any"))
}

func TestParsedAddressEmpty(t *testing.T) {
	assert.True(t, ParsedAddress{}.Empty())
	assert.False(t, ParsedAddress{City: "Sacramento"}.Empty())
}
