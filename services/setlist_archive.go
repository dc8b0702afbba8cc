package services

import (
	"context"
	"fmt"
	"time"

	"setlist-survivor/utils"
)

// SetlistArchive keeps the raw text each acquisition step returned.
type SetlistArchive interface {
	Store(ctx context.Context, showID, source, text string) error
}

// R2SetlistArchive writes setlists/{showID}/{unix}-{source}.txt objects to an R2 bucket.
type R2SetlistArchive struct {
	client utils.ObjectPutter
	bucket string
	now    func() time.Time
}

func NewR2SetlistArchive(client utils.ObjectPutter, bucket string) *R2SetlistArchive {
	return &R2SetlistArchive{client: client, bucket: bucket, now: time.Now}
}

func (a *R2SetlistArchive) Store(ctx context.Context, showID, source, text string) error {
	key := fmt.Sprintf("setlists/%s/%d-%s.txt", showID, a.now().Unix(), source)
	return utils.PutText(ctx, a.client, a.bucket, key, text)
}
