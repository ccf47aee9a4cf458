package processor

import (
	"connector/pkg/errors"
	"connector/pkg/models"
)

type route struct {
	linkType models.LinkType
	kind     models.Kind
}

// Registry maps the origin and kind of a message to its processor. The
// table is fixed once built.
type Registry struct {
	processors map[route]Processor
}

func NewRegistry(toBackend, toGateway, evidence, cleanup Processor) *Registry {
	return &Registry{processors: map[route]Processor{
		{models.LinkTypeGateway, models.KindBusiness}:  toBackend,
		{models.LinkTypeGateway, models.KindEvidence}:  evidence,
		{models.LinkTypeBackend, models.KindBusiness}:  toGateway,
		{models.LinkTypeBackend, models.KindEvidence}:  evidence,
		{models.LinkTypeConnector, models.KindCleanup}: cleanup,
	}}
}

// BuildRegistry wires the standard processors from d.
func BuildRegistry(d Deps) *Registry {
	return NewRegistry(
		NewToBackendProcessor(d),
		NewToGatewayProcessor(d),
		NewEvidenceProcessor(d),
		NewCleanupProcessor(d),
	)
}

func (r *Registry) Lookup(linkType models.LinkType, kind models.Kind) (Processor, error) {
	p, ok := r.processors[route{linkType, kind}]
	if !ok || p == nil {
		return nil, errors.ErrValidation.
			WithMessage("no processor for message").
			WithDetail("link_type", string(linkType)).
			WithDetail("kind", string(kind))
	}
	return p, nil
}
