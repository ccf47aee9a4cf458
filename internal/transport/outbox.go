package transport

import (
	"context"

	"connector/pkg/models"
)

type submission struct {
	msg      *models.Message
	link     string
	linkType models.LinkType
	internal bool
}

// Outbox records submissions made while a unit of work is open and
// replays them in order once the work is known to succeed. It is not safe
// for concurrent use; each unit of work owns one.
type Outbox struct {
	pending []submission
}

func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) SubmitToLink(ctx context.Context, msg *models.Message, link string) error {
	if err := ValidateLink(link); err != nil {
		return err
	}
	o.pending = append(o.pending, submission{msg: msg.Clone(), link: link})
	return nil
}

func (o *Outbox) SubmitToConnector(ctx context.Context, msg *models.Message, link string, linkType models.LinkType) error {
	if err := ValidateLink(link); err != nil {
		return err
	}
	o.pending = append(o.pending, submission{msg: msg.Clone(), link: link, linkType: linkType, internal: true})
	return nil
}

func (o *Outbox) Len() int {
	return len(o.pending)
}

// Flush submits everything recorded so far through s, stopping at the first
// failure.
func (o *Outbox) Flush(ctx context.Context, s Submitter) error {
	for len(o.pending) > 0 {
		next := o.pending[0]
		var err error
		if next.internal {
			err = s.SubmitToConnector(ctx, next.msg, next.link, next.linkType)
		} else {
			err = s.SubmitToLink(ctx, next.msg, next.link)
		}
		if err != nil {
			return err
		}
		o.pending = o.pending[1:]
	}
	return nil
}

// Reset drops recorded submissions, e.g. after a rollback.
func (o *Outbox) Reset() {
	o.pending = nil
}
