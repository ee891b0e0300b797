// Package blob abstracts the image store. Paths mirror the original layout:
// recipe images at images/{userId}/{recipeId}/recipeImage.jpg and profile
// pictures at images/{userId}/profile.
package blob

import (
	"context"
	"errors"
)

// MaxBlobSize caps reads; anything larger is rejected as oversized.
const MaxBlobSize = 2048 * 2048

var (
	ErrNotFound  = errors.New("blob: not found")
	ErrOversized = errors.New("blob: object exceeds size limit")
)

type Store interface {
	Put(ctx context.Context, path string, data []byte) error
	// Get returns the object bytes, or ErrNotFound / ErrOversized.
	Get(ctx context.Context, path string) ([]byte, error)
}

func RecipeImagePath(userID, recipeID string) string {
	return "images/" + userID + "/" + recipeID + "/recipeImage.jpg"
}

func ProfileImagePath(userID string) string {
	return "images/" + userID + "/profile"
}
