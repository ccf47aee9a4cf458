package processor

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"connector/internal/config"
	"connector/internal/container"
	"connector/internal/deduplication"
	"connector/internal/evidence"
	"connector/internal/logger"
	"connector/internal/persistence"
	"connector/internal/pmode"
	"connector/internal/routing"
	pkgerrors "connector/pkg/errors"
	"connector/pkg/models"
)

type submission struct {
	msg      *models.Message
	link     string
	linkType models.LinkType
	internal bool
}

type recordingSubmitter struct {
	mu       sync.Mutex
	sent     []submission
	failLink string
}

func (s *recordingSubmitter) SubmitToLink(ctx context.Context, msg *models.Message, link string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if link == s.failLink {
		return pkgerrors.ErrServiceUnavailable.WithMessage("link down")
	}
	s.sent = append(s.sent, submission{msg: msg.Clone(), link: link})
	return nil
}

func (s *recordingSubmitter) SubmitToConnector(ctx context.Context, msg *models.Message, link string, linkType models.LinkType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, submission{msg: msg.Clone(), link: link, linkType: linkType, internal: true})
	return nil
}

func (s *recordingSubmitter) links() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, sub := range s.sent {
		out[i] = sub.link
	}
	return out
}

func (s *recordingSubmitter) last() submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[len(s.sent)-1]
}

func (s *recordingSubmitter) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = nil
}

type rejectingContainer struct {
	err error
}

func (c rejectingContainer) BuildContainer(ctx context.Context, msg *models.Message) (*models.MessageContent, error) {
	return nil, c.err
}

func (c rejectingContainer) ValidateContainer(ctx context.Context, msg *models.Message) (*models.MessageContent, error) {
	return nil, c.err
}

type staticGuard struct {
	seen     bool
	recorded []deduplication.EvidenceKey
}

func (g *staticGuard) Seen(ctx context.Context, key deduplication.EvidenceKey) (bool, error) {
	return g.seen, nil
}

func (g *staticGuard) Record(ctx context.Context, key deduplication.EvidenceKey) {
	g.recorded = append(g.recorded, key)
}

const (
	laneID      = "epo"
	gatewayLink = "gw-1"
	backendLink = "backend-a"
	idSuffix    = "@connector.test"
)

type harness struct {
	store     *persistence.MemoryStore
	submitter *recordingSubmitter
	deps      Deps
}

func testLanes() []config.LaneConfig {
	return []config.LaneConfig{{
		ID:                        laneID,
		DefaultBackendLink:        backendLink,
		DefaultGatewayLink:        gatewayLink,
		RoutingEnabled:            true,
		SendEvidenceBackToBackend: true,
		PModes:                    []config.PModeConfig{{Service: "EPO", Action: "Form_A"}},
	}}
}

func newHarness(t *testing.T, rules ...routing.Rule) *harness {
	t.Helper()
	log := logger.NopLogger()
	lanes := testLanes()

	builder, err := evidence.NewBuilder(config.EvidenceConfig{
		HashAlgorithm: "sha256",
		Signer:        config.SignerConfig{Issuer: "connector-test"},
	}, evidence.NewDocumentSigner(), log)
	require.NoError(t, err)

	verifier, err := pmode.NewVerifier(lanes, log)
	require.NoError(t, err)

	router := routing.NewService(&routing.StaticRepository{Rules: rules}, config.RoutingConfig{}, lanes, log)
	require.NoError(t, router.ReloadRules(context.Background(), true))

	store := persistence.NewMemoryStore()
	submitter := &recordingSubmitter{}
	return &harness{
		store:     store,
		submitter: submitter,
		deps: Deps{
			Store:        store,
			Submitter:    submitter,
			Evidence:     builder,
			Router:       router,
			PModes:       verifier,
			Container:    container.Passthrough{},
			Lanes:        lanes,
			EbmsIDSuffix: idSuffix,
			Logger:       log,
		},
	}
}

func (h *harness) stored(t *testing.T, id string, direction models.Direction) *models.Message {
	t.Helper()
	msg, err := h.store.FindBusinessMessageByIDAndDirection(context.Background(), id, direction)
	require.NoError(t, err)
	return msg
}

func document() *models.MessageContent {
	return &models.MessageContent{DocumentName: "form.pdf", ContentType: "application/pdf", Document: []byte("%PDF-1.7 form")}
}

func backendMessage(backendID, action string) *models.Message {
	return models.NewMessageBuilder().
		WithDirection(models.DirectionBackendToGateway).
		WithLane(laneID).
		WithDetails(models.MessageDetails{BackendMessageID: backendID}).
		WithService("EPO", "").
		WithAction(action).
		WithParties(models.Party{ID: "court-at"}, models.Party{ID: "court-de"}).
		WithContent(document()).
		WithBackendLink(backendLink).
		Build()
}

func gatewayMessage(ebmsID, action string) *models.Message {
	return models.NewMessageBuilder().
		WithDirection(models.DirectionGatewayToBackend).
		WithLane(laneID).
		WithDetails(models.MessageDetails{EbmsMessageID: ebmsID}).
		WithService("EPO", "").
		WithAction(action).
		WithParties(models.Party{ID: "court-de"}, models.Party{ID: "court-at"}).
		WithContent(document()).
		WithGatewayLink(gatewayLink).
		WithTransportedConfirmation(models.Confirmation{
			EvidenceType: models.EvidenceSubmissionAcceptance,
			Evidence:     []byte("signed submission acceptance"),
		}).
		Build()
}

// evidenceMessage is evidence for ref arriving in direction.
func evidenceMessage(ref string, direction models.Direction, c models.Confirmation) *models.Message {
	return models.NewMessageBuilder().
		WithDirection(direction).
		WithLane(laneID).
		WithDetails(models.MessageDetails{RefToMessageID: ref}).
		WithTransportedConfirmation(c).
		Build()
}

func signed(t models.EvidenceType) models.Confirmation {
	return models.Confirmation{EvidenceType: t, Evidence: []byte("signed " + string(t))}
}

func evidenceTypes(msg *models.Message) []models.EvidenceType {
	out := make([]models.EvidenceType, len(msg.RelatedConfirmations))
	for i, c := range msg.RelatedConfirmations {
		out[i] = c.EvidenceType
	}
	return out
}
