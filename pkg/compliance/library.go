package compliance

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/access"
	"github.com/Ramsey-B/clover/pkg/docstore"
	"github.com/Ramsey-B/clover/pkg/models"
)

const (
	pngDataURLPrefix = "data:image/png;base64,"
	MaxMediaBytes    = 2 << 20
	DefaultCategory  = "General"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

var (
	ErrNotPNG        = errors.New("media must be a base64 PNG data URL")
	ErrMediaTooLarge = fmt.Errorf("media exceeds %d bytes", MaxMediaBytes)
	ErrInvalidLink   = errors.New("link must be an absolute http or https URL")
)

// Library is the admin-curated set of links and media.
type Library struct {
	links  *docstore.Collection[models.ApprovedLink]
	media  *docstore.Collection[models.ApprovedMedia]
	logger ectologger.Logger
}

func NewLibrary(gateway docstore.Gateway, logger ectologger.Logger) *Library {
	return &Library{
		links:  docstore.NewCollection[models.ApprovedLink](gateway, docstore.KindLinks, logger),
		media:  docstore.NewCollection[models.ApprovedMedia](gateway, docstore.KindMedia, logger),
		logger: logger,
	}
}

func (l *Library) Links(ctx context.Context) ([]models.ApprovedLink, error) {
	return l.links.List(ctx, nil)
}

func (l *Library) Media(ctx context.Context) ([]models.ApprovedMedia, error) {
	return l.media.List(ctx, nil)
}

func (l *Library) AddLink(ctx context.Context, actor models.Agent, link models.ApprovedLink) (models.ApprovedLink, error) {
	if err := access.RequireAdmin(actor, "add approved link"); err != nil {
		return models.ApprovedLink{}, err
	}
	if err := validateLinkURL(link.URL); err != nil {
		return models.ApprovedLink{}, err
	}
	if link.ID == "" {
		link.ID = "link-" + uuid.NewString()
	}
	if link.Category == "" {
		link.Category = DefaultCategory
	}
	if err := l.links.Upsert(ctx, link); err != nil {
		return models.ApprovedLink{}, err
	}
	l.logger.WithContext(ctx).WithFields(map[string]any{"link_id": link.ID, "url": link.URL}).Info("approved link added")
	return link, nil
}

func (l *Library) RemoveLink(ctx context.Context, actor models.Agent, id string) error {
	if err := access.RequireAdmin(actor, "remove approved link"); err != nil {
		return err
	}
	return l.links.Delete(ctx, id)
}

func (l *Library) AddMedia(ctx context.Context, actor models.Agent, media models.ApprovedMedia) (models.ApprovedMedia, error) {
	if err := access.RequireAdmin(actor, "add approved media"); err != nil {
		return models.ApprovedMedia{}, err
	}
	if err := ValidatePNG(media.URL); err != nil {
		return models.ApprovedMedia{}, err
	}
	if media.ID == "" {
		media.ID = "media-" + uuid.NewString()
	}
	media.Type = models.MediaImage
	media.IsLocal = true
	if err := l.media.Upsert(ctx, media); err != nil {
		return models.ApprovedMedia{}, err
	}
	l.logger.WithContext(ctx).WithField("media_id", media.ID).Info("approved media added")
	return media, nil
}

func (l *Library) RemoveMedia(ctx context.Context, actor models.Agent, id string) error {
	if err := access.RequireAdmin(actor, "remove approved media"); err != nil {
		return err
	}
	return l.media.Delete(ctx, id)
}

// ValidatePNG checks a data URL holds a PNG no larger than MaxMediaBytes once decoded.
func ValidatePNG(dataURL string) error {
	if !strings.HasPrefix(dataURL, pngDataURLPrefix) {
		return ErrNotPNG
	}
	encoded := dataURL[len(pngDataURLPrefix):]
	if base64.StdEncoding.DecodedLen(len(encoded)) > MaxMediaBytes+3 {
		return ErrMediaTooLarge
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ErrNotPNG
	}
	if len(raw) > MaxMediaBytes {
		return ErrMediaTooLarge
	}
	if !bytes.HasPrefix(raw, pngMagic) {
		return ErrNotPNG
	}
	return nil
}

func validateLinkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidLink
	}
	return nil
}

// IsInvalidContent reports whether err is a library content rejection.
func IsInvalidContent(err error) bool {
	return errors.Is(err, ErrNotPNG) || errors.Is(err, ErrMediaTooLarge) || errors.Is(err, ErrInvalidLink)
}
