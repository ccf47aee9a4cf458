package evidence

import (
	"context"
	"encoding/json"
	"fmt"

	"connector/internal/config"
	"connector/internal/logger"
	"connector/pkg/digest"
)

const (
	signerTypeDocument = "document"
	signerTypeRemote   = "remote"
)

type SignRequest struct {
	Facts Facts `json:"facts"`
	// Predecessor holds the signed bytes of the evidence this one is chained
	// to. Empty for root evidence.
	Predecessor []byte `json:"predecessor,omitempty"`
}

// Signer turns evidence facts into signed evidence bytes.
type Signer interface {
	Sign(ctx context.Context, req SignRequest) ([]byte, error)
}

const documentVersion = 1

// Document is the evidence format produced by DocumentSigner. Each document
// commits to its predecessor through PredecessorDigest.
type Document struct {
	Version           int    `json:"version"`
	Facts             Facts  `json:"facts"`
	PredecessorDigest string `json:"predecessor_digest,omitempty"`
	Digest            string `json:"digest"`
}

type documentBody struct {
	Version           int    `json:"version"`
	Facts             Facts  `json:"facts"`
	PredecessorDigest string `json:"predecessor_digest,omitempty"`
}

// DocumentSigner produces unsigned, digest chained JSON evidence. Meant for
// development setups without an evidence signing service.
type DocumentSigner struct{}

func NewDocumentSigner() *DocumentSigner {
	return &DocumentSigner{}
}

func (s *DocumentSigner) Sign(ctx context.Context, req SignRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body := documentBody{Version: documentVersion, Facts: req.Facts}
	if len(req.Predecessor) > 0 {
		sum, err := digest.SHA256.SumHex(req.Predecessor)
		if err != nil {
			return nil, err
		}
		body.PredecessorDigest = sum
	}

	sum, _, err := digest.CanonicalSHA256(body)
	if err != nil {
		return nil, fmt.Errorf("failed to digest evidence document: %w", err)
	}

	return json.Marshal(Document{
		Version:           body.Version,
		Facts:             body.Facts,
		PredecessorDigest: body.PredecessorDigest,
		Digest:            sum,
	})
}

func ParseDocument(b []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("invalid evidence document: %w", err)
	}
	return &doc, nil
}

// Verify checks the document digest and, when predecessor is given, that
// the document is chained to it.
func (d *Document) Verify(predecessor []byte) error {
	sum, _, err := digest.CanonicalSHA256(documentBody{
		Version:           d.Version,
		Facts:             d.Facts,
		PredecessorDigest: d.PredecessorDigest,
	})
	if err != nil {
		return err
	}
	if sum != d.Digest {
		return fmt.Errorf("evidence digest mismatch")
	}

	if predecessor == nil {
		return nil
	}
	want, err := digest.SHA256.SumHex(predecessor)
	if err != nil {
		return err
	}
	if want != d.PredecessorDigest {
		return fmt.Errorf("evidence is not chained to the given predecessor")
	}
	return nil
}

// NewSigner creates the signer selected by evidence.signer.type.
func NewSigner(cfg config.EvidenceConfig, cbCfg config.CircuitBreakerConfig, log logger.Logger) (Signer, error) {
	switch cfg.Signer.Type {
	case "", signerTypeDocument:
		return NewDocumentSigner(), nil
	case signerTypeRemote:
		return NewRemoteSigner(cfg.Signer, cbCfg, log), nil
	default:
		return nil, fmt.Errorf("unknown signer type: %s", cfg.Signer.Type)
	}
}
