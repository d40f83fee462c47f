package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2026, 5, 12, 9, 30, 0, 123456789, time.UTC)

	encoded := EncodeCursor("item-42", ts)
	require.NotEmpty(t, encoded)

	decoded, err := DecodeCursor(encoded)
	require.NoError(t, err)
	assert.Equal(t, "item-42", decoded.LastID)
	assert.True(t, decoded.Timestamp.Equal(ts))
}

func TestEncodeCursor_EmptyID(t *testing.T) {
	assert.Empty(t, EncodeCursor("", time.Now()))
}

func TestDecodeCursor_Empty(t *testing.T) {
	decoded, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestDecodeCursor_Invalid(t *testing.T) {
	_, err := DecodeCursor("not-base64!!")
	assert.ErrorIs(t, err, ErrInvalidCursor)

	// Valid base64 but missing the separator.
	_, err = DecodeCursor("aXRlbS00Mg==")
	assert.ErrorIs(t, err, ErrInvalidCursor)

	// Separator present but the timestamp is garbage.
	_, err = DecodeCursor("aXRlbS00MnxnYXJiYWdl")
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestCreateNextCursor(t *testing.T) {
	type row struct {
		ID        string
		CreatedAt time.Time
	}
	getID := func(r row) string { return r.ID }
	getTS := func(r row) time.Time { return r.CreatedAt }

	ts := time.Date(2026, 5, 12, 9, 30, 0, 0, time.UTC)
	rows := []row{{ID: "a", CreatedAt: ts}, {ID: "b", CreatedAt: ts.Add(time.Second)}}

	// A full page yields a cursor pointing at the last row.
	cursor := CreateNextCursor(rows, 2, getID, getTS)
	decoded, err := DecodeCursor(cursor)
	require.NoError(t, err)
	assert.Equal(t, "b", decoded.LastID)

	// A short page means no more data.
	assert.Empty(t, CreateNextCursor(rows, 3, getID, getTS))
	assert.Empty(t, CreateNextCursor([]row{}, 2, getID, getTS))
}
