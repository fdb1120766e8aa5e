package dispatch

import "github.com/go-telegram/bot/models"

// SelectMaxPhoto returns the variant with the greatest (FileSize, Width, Height).
// The first maximal variant wins. An empty set yields the zero PhotoSize,
// whose empty FileID means "no photo".
func SelectMaxPhoto(sizes []models.PhotoSize) models.PhotoSize {
	var best models.PhotoSize
	for i, p := range sizes {
		if i == 0 || photoLess(best, p) {
			best = p
		}
	}
	return best
}

func photoLess(a, b models.PhotoSize) bool {
	if a.FileSize != b.FileSize {
		return a.FileSize < b.FileSize
	}
	if a.Width != b.Width {
		return a.Width < b.Width
	}
	return a.Height < b.Height
}
