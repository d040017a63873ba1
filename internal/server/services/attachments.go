package services

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/dmitrijs2005/carenest/internal/common"
	"github.com/dmitrijs2005/carenest/internal/server/blobstore"
	"github.com/dmitrijs2005/carenest/internal/server/models"
)

// AttachmentUpload is an attachment as sent by a client: base64 data,
// optionally as a data URL.
type AttachmentUpload struct {
	Data     string
	MimeType string
	Name     string
}

// decodeAttachment accepts plain base64 or "data:<mime>;base64,<data>". The
// declared mime type wins; the data URL's is the fallback.
func decodeAttachment(a AttachmentUpload, maxBytes int64) ([]byte, string, error) {
	data, mime := strings.TrimSpace(a.Data), strings.TrimSpace(a.MimeType)
	if rest, ok := strings.CutPrefix(data, "data:"); ok {
		header, payload, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(header, ";base64") {
			return nil, "", common.ErrInvalidAttachment
		}
		if mime == "" {
			mime = strings.TrimSuffix(header, ";base64")
		}
		data = payload
	}
	if data == "" || mime == "" || strings.TrimSpace(a.Name) == "" {
		return nil, "", common.ErrInvalidAttachment
	}
	if maxBytes > 0 && int64(base64.StdEncoding.DecodedLen(len(data))) > maxBytes+2 {
		return nil, "", common.ErrAttachmentTooLarge
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		if raw, err = base64.RawStdEncoding.DecodeString(data); err != nil {
			return nil, "", common.ErrInvalidAttachment
		}
	}
	if maxBytes > 0 && int64(len(raw)) > maxBytes {
		return nil, "", common.ErrAttachmentTooLarge
	}
	return raw, mime, nil
}

// decodedAttachment is an upload that passed validation and waits for
// storage.
type decodedAttachment struct {
	name string
	mime string
	raw  []byte
}

// decodeAttachments validates every upload without touching storage.
// Failures are logged, counted and skipped; the survivors are returned.
func (s *MessageService) decodeAttachments(ctx context.Context, uploads []AttachmentUpload) []decodedAttachment {
	if len(uploads) == 0 {
		return nil
	}

	decoded := make([]decodedAttachment, 0, len(uploads))
	for i, up := range uploads {
		d, err := s.decodeUpload(up)
		if err != nil {
			s.logger.Warn(ctx, "attachment skipped", "index", i, "name", up.Name, "error", err)
			s.metrics.AttachmentFailed()
			continue
		}
		decoded = append(decoded, d)
	}
	return decoded
}

func (s *MessageService) decodeUpload(up AttachmentUpload) (decodedAttachment, error) {
	if s.blobs == nil {
		return decodedAttachment{}, errNoBlobStore
	}
	raw, mime, err := decodeAttachment(up, s.attachmentMaxBytes)
	if err != nil {
		return decodedAttachment{}, err
	}
	return decodedAttachment{name: strings.TrimSpace(up.Name), mime: mime, raw: raw}, nil
}

// uploadAttachments stores each decoded attachment independently, skipping
// the ones the blob store rejects.
func (s *MessageService) uploadAttachments(ctx context.Context, decoded []decodedAttachment) []models.Attachment {
	if len(decoded) == 0 {
		return nil
	}

	stored := make([]models.Attachment, 0, len(decoded))
	for i, d := range decoded {
		att, err := s.uploadAttachment(ctx, d)
		if err != nil {
			s.logger.Warn(ctx, "attachment skipped", "index", i, "name", d.name, "error", err)
			s.metrics.AttachmentFailed()
			continue
		}
		stored = append(stored, att)
	}
	return stored
}

func (s *MessageService) uploadAttachment(ctx context.Context, d decodedAttachment) (models.Attachment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.attachmentTimeout)
	defer cancel()

	key := blobstore.StorageKey(s.now(), d.name)
	if err := s.blobs.Put(ctx, key, d.raw, d.mime); err != nil {
		return models.Attachment{}, err
	}
	return models.Attachment{
		StorageKey: key,
		Name:       d.name,
		MimeType:   d.mime,
		Size:       int64(len(d.raw)),
	}, nil
}

// discardAttachments removes blobs whose message was never stored.
func (s *MessageService) discardAttachments(ctx context.Context, atts []models.Attachment) {
	if len(atts) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.attachmentTimeout)
	defer cancel()

	for _, a := range atts {
		if err := s.blobs.Delete(ctx, a.StorageKey); err != nil {
			s.logger.Warn(ctx, "orphaned attachment not removed", "key", a.StorageKey, "error", err)
		}
	}
}

// signAttachments fills download URLs in place. A URL that cannot be
// signed is left empty.
func (s *MessageService) signAttachments(ctx context.Context, msgs []*models.Message) {
	if s.blobs == nil {
		return
	}
	for _, m := range msgs {
		for i := range m.Attachments {
			url, err := s.blobs.URL(ctx, m.Attachments[i].StorageKey)
			if err != nil {
				s.logger.Warn(ctx, "presign failed", "message_id", m.ID, "error", err)
				continue
			}
			m.Attachments[i].URL = url
		}
	}
}
