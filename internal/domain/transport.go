package domain

import "context"

// MessageSender delivers fire-and-forget replies.
type MessageSender interface {
	SendGroupMessage(ctx context.Context, groupID, text string) error
	SendDirectMessage(ctx context.Context, recipient, text string) error
}

// AttachmentFetcher retrieves attachment content (base64) on demand.
type AttachmentFetcher interface {
	FetchAttachment(ctx context.Context, id, groupID string) (string, error)
}
