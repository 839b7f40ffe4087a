package usecases

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/mzabaleta/routefit/internal/core/domain"
	"github.com/mzabaleta/routefit/internal/core/ports"
	"github.com/mzabaleta/routefit/internal/pkg/geospatial"
)

// SessionState is the lifecycle state of a directions session.
type SessionState string

const (
	SessionIdle    SessionState = "idle"
	SessionLoading SessionState = "loading"
	SessionActive  SessionState = "active"
	SessionClosed  SessionState = "closed"
)

// advanceThresholdMeters is how close a position fix must come to the current
// step's end point before the cursor auto-advances.
const advanceThresholdMeters = 25

// SessionView is a read-only snapshot of the active directions session.
type SessionView struct {
	ID               string                 `json:"id"`
	State            SessionState           `json:"state"`
	Steps            []domain.NarrationStep `json:"steps"`
	CurrentStepIndex int                    `json:"current_step_index"`
	Arrived          bool                   `json:"arrived"`
	VoiceEnabled     bool                   `json:"voice_enabled"`
	Route            *domain.RoutedShape    `json:"route,omitempty"`
	MockRoute        bool                   `json:"mock_route,omitempty"`
}

type session struct {
	id           string
	state        SessionState
	steps        []domain.NarrationStep
	current      int
	arrived      bool
	voiceEnabled bool
	route        *domain.RoutedShape
	mock         bool
}

// NarrationService owns the turn-by-turn directions session. At most one
// session is active at a time; opening a new one replaces the old. Narration
// is best-effort: narrator and publisher failures never surface to callers.
type NarrationService struct {
	resolver  RouteResolver
	narrator  ports.Narrator
	publisher ports.EventPublisher

	mu      sync.Mutex
	current *session
	// voiceAutoEnabled flips once per process: the first successful route
	// turns voice on automatically, later sessions keep the user's choice.
	voiceAutoEnabled bool
	voicePreference  bool
}

// NewNarrationService creates a new NarrationService. narrator and publisher
// may be nil; narration is then skipped silently.
func NewNarrationService(resolver RouteResolver, narrator ports.Narrator, publisher ports.EventPublisher) *NarrationService {
	return &NarrationService{resolver: resolver, narrator: narrator, publisher: publisher}
}

// OpenDirections resolves the shape into a routed step list and activates a
// new session, replacing any existing one. When the provider yields no usable
// route the session falls back to a locally generated compass route.
func (s *NarrationService) OpenDirections(ctx context.Context, shape *domain.Shape, mode domain.TravelMode) (*SessionView, error) {
	if shape == nil || len(shape.Points) < 2 {
		return nil, fmt.Errorf("directions need a shape with at least 2 points")
	}

	s.mu.Lock()
	if s.current != nil && s.current.state == SessionActive {
		s.current.state = SessionClosed
	}
	sess := &session{id: newSessionID(), state: SessionLoading}
	s.current = sess
	s.mu.Unlock()

	routed, err := s.resolver.ResolveRoute(ctx, shape.Points, mode)
	mock := false
	if err != nil || routed.Empty() || len(routed.Steps) == 0 {
		routed = GenerateMockRoute(shape.Points)
		mock = true
	}

	steps := MergeSteps(routed.Steps)
	if len(steps) == 0 {
		s.mu.Lock()
		sess.state = SessionClosed
		s.mu.Unlock()
		return nil, fmt.Errorf("unable to generate directions")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.voiceAutoEnabled {
		s.voiceAutoEnabled = true
		s.voicePreference = true
	}

	sess.steps = steps
	sess.route = routed
	sess.mock = mock
	sess.current = 0
	sess.state = SessionActive
	sess.voiceEnabled = s.voicePreference

	s.narrateLocked(ctx, sess, "Start. "+steps[0].InstructionText, false)
	return snapshot(sess), nil
}

// FeedPosition applies one live position fix to the session. Within 25 m of
// the current step's end point the cursor advances; on the last step it
// narrates arrival exactly once and stays put.
func (s *NarrationService) FeedPosition(ctx context.Context, fix *domain.PositionFix) {
	if fix == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.current
	if sess == nil || sess.state != SessionActive {
		return
	}
	if fix.SessionID != "" && fix.SessionID != sess.id {
		return
	}

	step := sess.steps[sess.current]
	if step.EndPoint == nil {
		// Provider omitted the end point; this step only advances manually.
		return
	}
	if geospatial.Distance(fix.Location, *step.EndPoint) > advanceThresholdMeters {
		return
	}

	if sess.current < len(sess.steps)-1 {
		sess.current++
		s.narrateLocked(ctx, sess, sess.steps[sess.current].InstructionText, false)
		return
	}
	if !sess.arrived {
		sess.arrived = true
		s.narrateLocked(ctx, sess, "You have arrived at your destination", true)
	}
}

// Advance moves the cursor forward manually, clamped to the last step, and
// narrates the new current step.
func (s *NarrationService) Advance(ctx context.Context) (*SessionView, error) {
	return s.moveCursor(ctx, 1)
}

// Retreat moves the cursor backward manually, clamped to the first step, and
// narrates the new current step.
func (s *NarrationService) Retreat(ctx context.Context) (*SessionView, error) {
	return s.moveCursor(ctx, -1)
}

func (s *NarrationService) moveCursor(ctx context.Context, delta int) (*SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.current
	if sess == nil || sess.state != SessionActive {
		return nil, fmt.Errorf("no active directions session")
	}

	next := sess.current + delta
	if next < 0 {
		next = 0
	}
	if next > len(sess.steps)-1 {
		next = len(sess.steps) - 1
	}
	if next != sess.current {
		sess.current = next
		s.narrateLocked(ctx, sess, sess.steps[next].InstructionText, false)
	}
	return snapshot(sess), nil
}

// Close ends the session, narrates a closing message, and cancels any
// in-flight utterance. Position fixes arriving afterwards are ignored.
func (s *NarrationService) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.current
	if sess == nil || sess.state != SessionActive {
		return fmt.Errorf("no active directions session")
	}

	s.narrateLocked(ctx, sess, "Navigation ended", false)
	sess.state = SessionClosed
	s.voicePreference = sess.voiceEnabled
	s.current = nil
	return nil
}

// SetVoiceEnabled toggles speech. Turning voice on re-announces the current
// step immediately; turning it off cancels any in-flight utterance.
func (s *NarrationService) SetVoiceEnabled(ctx context.Context, enabled bool) (*SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.current
	if sess == nil || sess.state != SessionActive {
		return nil, fmt.Errorf("no active directions session")
	}

	if enabled == sess.voiceEnabled {
		return snapshot(sess), nil
	}
	sess.voiceEnabled = enabled
	s.voicePreference = enabled

	if enabled {
		s.narrateLocked(ctx, sess, sess.steps[sess.current].InstructionText, false)
	} else if s.narrator != nil {
		_ = s.narrator.Cancel(ctx, sess.id)
		if s.publisher != nil {
			_ = s.publisher.PublishNarration(ctx, &domain.NarrationEvent{
				SessionID: sess.id,
				Type:      "cancel",
				StepIndex: sess.current,
			})
		}
	}
	return snapshot(sess), nil
}

// Session returns a snapshot of the active session, or nil when idle.
func (s *NarrationService) Session() *SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return snapshot(s.current)
}

// narrateLocked emits one narration event and speaks it if voice is on.
// Callers hold s.mu.
func (s *NarrationService) narrateLocked(ctx context.Context, sess *session, text string, arrival bool) {
	if s.publisher != nil {
		_ = s.publisher.PublishNarration(ctx, &domain.NarrationEvent{
			SessionID: sess.id,
			Type:      "say",
			Text:      text,
			StepIndex: sess.current,
			Arrival:   arrival,
		})
	}
	if sess.voiceEnabled && s.narrator != nil {
		_ = s.narrator.Say(ctx, sess.id, text)
	}
}

// MergeSteps collapses consecutive raw provider steps whose normalized
// instruction text is identical: distances sum, the end point comes from the
// later step, and the display text from the first.
func MergeSteps(raw []domain.RouteStep) []domain.NarrationStep {
	var out []domain.NarrationStep
	for _, step := range raw {
		text := stripHTML(step.Instruction)
		norm := strings.ToLower(text)
		if n := len(out); n > 0 && strings.ToLower(out[n-1].InstructionText) == norm {
			out[n-1].DistanceMeters += step.DistanceMeters
			if step.EndPoint != nil {
				end := *step.EndPoint
				out[n-1].EndPoint = &end
			}
			continue
		}
		merged := domain.NarrationStep{
			InstructionText: text,
			DistanceMeters:  step.DistanceMeters,
		}
		if step.StartPoint != nil {
			start := *step.StartPoint
			merged.StartPoint = &start
		}
		if step.EndPoint != nil {
			end := *step.EndPoint
			merged.EndPoint = &end
		}
		out = append(out, merged)
	}
	return out
}

// stripHTML drops tags and collapses whitespace runs to single spaces.
func stripHTML(in string) string {
	var b strings.Builder
	inTag := false
	for _, r := range in {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteRune(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func snapshot(sess *session) *SessionView {
	return &SessionView{
		ID:               sess.id,
		State:            sess.state,
		Steps:            sess.steps,
		CurrentStepIndex: sess.current,
		Arrived:          sess.arrived,
		VoiceEnabled:     sess.voiceEnabled,
		Route:            sess.route,
		MockRoute:        sess.mock,
	}
}

func newSessionID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "session-fallback"
	}
	return hex.EncodeToString(b)
}
