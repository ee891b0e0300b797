package trecord_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platefeed/server/pkg/model/mcomment"
	"github.com/platefeed/server/pkg/model/mrecipe"
	"github.com/platefeed/server/pkg/translate/trecord"
)

func sampleEntry() mrecipe.RecipeEntry {
	return mrecipe.RecipeEntry{
		ID:          "r1",
		Name:        "Shakshuka",
		UserID:      "u1",
		Description: "Eggs poached in tomato sauce",
		Ingredients: []string{"eggs", "tomatoes", "paprika"},
		Directions:  []string{"simmer sauce", "crack eggs", "cover"},
		Likes:       map[string]int{"u2": 1},
		Bookmarks:   3,
		DateTime:    "2026-01-15T10:00:00Z",
		Comments: map[string]mcomment.Comment{
			"c1": {ID: "c1", UserID: "u2", DateTime: "2026-01-16T08:00:00Z", Content: "delicious"},
		},
	}
}

func TestRecipeRoundTrip(t *testing.T) {
	entry := sampleEntry()
	record, err := trecord.RecipeToRecord(entry)
	require.NoError(t, err)

	require.Equal(t, "r1", record["id"])
	require.Equal(t, "u1", record["user"])

	decoded, err := trecord.RecordToRecipe(record)
	require.NoError(t, err)
	require.Equal(t, entry, decoded)
}

func TestRecipeToRecordRequiresID(t *testing.T) {
	entry := sampleEntry()
	entry.ID = ""
	_, err := trecord.RecipeToRecord(entry)
	require.ErrorIs(t, err, trecord.ErrNoID)
}

func TestRecordToRecipeRejectsMissingFields(t *testing.T) {
	for _, field := range []string{"id", "name", "user", "description", "ingredients", "directions", "bookmarks", "datetime"} {
		record, err := trecord.RecipeToRecord(sampleEntry())
		require.NoError(t, err)
		delete(record, field)

		_, err = trecord.RecordToRecipe(record)
		require.ErrorIs(t, err, trecord.ErrMalformedRecord, "field %q", field)
	}
}

func TestRecordToRecipeDefaultsOptionalMaps(t *testing.T) {
	entry := sampleEntry()
	entry.Likes = nil
	entry.Comments = nil
	record, err := trecord.RecipeToRecord(entry)
	require.NoError(t, err)

	// The backend elides empty children entirely.
	delete(record, "likes")
	delete(record, "comments")

	decoded, err := trecord.RecordToRecipe(record)
	require.NoError(t, err)
	require.NotNil(t, decoded.Likes)
	require.Empty(t, decoded.Likes)
	require.NotNil(t, decoded.Comments)
	require.Empty(t, decoded.Comments)
}

func TestRecordToRecipeRejectsNonRecord(t *testing.T) {
	_, err := trecord.RecordToRecipe("not a record")
	require.ErrorIs(t, err, trecord.ErrMalformedRecord)
}

func TestCommentRoundTrip(t *testing.T) {
	comment := mcomment.Comment{ID: "c1", UserID: "u1", DateTime: "2026-01-15T10:00:00Z", Content: "nice"}
	record, err := trecord.CommentToRecord(comment)
	require.NoError(t, err)

	decoded, err := trecord.RecordToComment(record)
	require.NoError(t, err)
	require.Equal(t, comment, decoded)
}

func TestRecordToCommentRejectsMissingContent(t *testing.T) {
	record, err := trecord.CommentToRecord(mcomment.Comment{ID: "c1", UserID: "u1", DateTime: "x", Content: "y"})
	require.NoError(t, err)
	delete(record, "content")

	_, err = trecord.RecordToComment(record)
	require.ErrorIs(t, err, trecord.ErrMalformedRecord)
}
