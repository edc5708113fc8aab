// Package decision is the JSON wire format decision sources speak. Payloads
// are validated against an embedded JSON schema before they become actions;
// whatever passes is still checked again by the game rules.
package decision

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"mearth/internal/domain/game"
	"mearth/internal/domain/world"
)

var (
	ErrNoPayload       = errors.New("no JSON object in decision text")
	ErrInvalidDecision = errors.New("invalid decision payload")
)

// Wire is the decision payload. A move may name a direction or the adjacent
// cell to step onto.
type Wire struct {
	Action     string `json:"action"`
	Direction  string `json:"direction,omitempty"`
	Steps      *int   `json:"steps,omitempty"`
	X          *int   `json:"x,omitempty"`
	Y          *int   `json:"y,omitempty"`
	NewX       *int   `json:"newX,omitempty"`
	NewY       *int   `json:"newY,omitempty"`
	Target     string `json:"target,omitempty"`
	Claim      string `json:"claim,omitempty"`
	PublicText string `json:"public_text,omitempty"`
	Reasoning  string `json:"reasoning,omitempty"`
}

type AllianceResponse struct {
	Accept bool   `json:"accept"`
	Reason string `json:"reason,omitempty"`
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)```")

// Extract pulls the payload out of free text: the first fenced code block
// holding an object, else the first balanced {...} span.
func Extract(text string) ([]byte, error) {
	for _, m := range fencedJSON.FindAllStringSubmatch(text, -1) {
		body := strings.TrimSpace(m[1])
		if strings.HasPrefix(body, "{") {
			return []byte(body), nil
		}
	}
	if obj, ok := firstObject(text); ok {
		return []byte(obj), nil
	}
	return nil, ErrNoPayload
}

func firstObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	for start >= 0 {
		depth := 0
		inString, escaped := false, false
		for i := start; i < len(text); i++ {
			c := text[i]
			switch {
			case escaped:
				escaped = false
			case inString && c == '\\':
				escaped = true
			case c == '"':
				inString = !inString
			case inString:
			case c == '{':
				depth++
			case c == '}':
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// Decode validates raw against the schema and converts it to a decision for
// an agent standing at self.
func Decode(raw []byte, self world.Position) (game.Decision, error) {
	decisionSchema, _ := schemas()
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return game.Decision{}, fmt.Errorf("%w: %v", ErrInvalidDecision, err)
	}
	if err := decisionSchema.Validate(doc); err != nil {
		return game.Decision{}, fmt.Errorf("%w: %v", ErrInvalidDecision, err)
	}
	var w Wire
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&w); err != nil {
		return game.Decision{}, fmt.Errorf("%w: %v", ErrInvalidDecision, err)
	}
	return w.ToDecision(self)
}

// DecodeText runs Extract then Decode.
func DecodeText(text string, self world.Position) (game.Decision, error) {
	raw, err := Extract(text)
	if err != nil {
		return game.Decision{}, err
	}
	return Decode(raw, self)
}

func (w Wire) ToDecision(self world.Position) (game.Decision, error) {
	out := game.Decision{PublicText: strings.TrimSpace(w.PublicText), Reasoning: strings.TrimSpace(w.Reasoning)}
	target := strings.TrimSpace(w.Target)
	switch game.ActionKind(w.Action) {
	case game.ActionMove:
		move, err := w.move(self)
		if err != nil {
			return game.Decision{}, err
		}
		out.Action = move
	case game.ActionBattle:
		out.Action = game.BattleAction{Target: target}
	case game.ActionAlliance:
		out.Action = game.AllianceAction{Target: target}
	case game.ActionBreakAlliance:
		out.Action = game.BreakAllianceAction{Target: target}
	case game.ActionIgnore:
		out.Action = game.IgnoreAction{Target: target}
	case game.ActionDeceive:
		claim := strings.TrimSpace(w.Claim)
		if claim == "" {
			claim = out.PublicText
		}
		out.Action = game.DeceiveAction{Claim: claim}
	default:
		return game.Decision{}, fmt.Errorf("%w: %q", game.ErrUnknownAction, w.Action)
	}
	return out, nil
}

// move prefers an explicit direction. Coordinates must name an orthogonally
// adjacent cell; anything else is a distance error for the resolver to report.
func (w Wire) move(self world.Position) (game.MoveAction, error) {
	steps := 1
	if w.Steps != nil {
		steps = *w.Steps
	}
	if strings.TrimSpace(w.Direction) != "" {
		d, err := world.ParseDirection(w.Direction)
		if err != nil {
			return game.MoveAction{Direction: world.Direction(strings.ToLower(strings.TrimSpace(w.Direction))), Steps: steps}, nil
		}
		return game.MoveAction{Direction: d, Steps: steps}, nil
	}
	x, y := w.X, w.Y
	if x == nil || y == nil {
		x, y = w.NewX, w.NewY
	}
	if x == nil || y == nil {
		return game.MoveAction{}, fmt.Errorf("%w: move needs a direction or target cell", ErrInvalidDecision)
	}
	to := world.Position{X: *x, Y: *y}
	d, ok := world.DirectionTo(self, to)
	if !ok {
		return game.MoveAction{}, fmt.Errorf("%w: %s is not one step from %s", game.ErrInvalidDistance, to, self)
	}
	return game.MoveAction{Direction: d, Steps: 1}, nil
}

// Encode renders a decision in wire form.
func Encode(d game.Decision) Wire {
	w := Wire{PublicText: d.PublicText, Reasoning: d.Reasoning}
	if d.Action == nil {
		return w
	}
	w.Action = string(d.Action.Kind())
	switch a := d.Action.(type) {
	case game.MoveAction:
		w.Direction = string(a.Direction)
		steps := a.Steps
		w.Steps = &steps
	case game.DeceiveAction:
		w.Claim = a.Claim
	default:
		w.Target, _ = game.TargetOf(d.Action)
	}
	return w
}

func DecodeAllianceResponse(text string) (AllianceResponse, error) {
	_, allianceSchema := schemas()
	raw, err := Extract(text)
	if err != nil {
		return AllianceResponse{}, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return AllianceResponse{}, fmt.Errorf("%w: %v", ErrInvalidDecision, err)
	}
	if err := allianceSchema.Validate(doc); err != nil {
		return AllianceResponse{}, fmt.Errorf("%w: %v", ErrInvalidDecision, err)
	}
	var out AllianceResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return AllianceResponse{}, fmt.Errorf("%w: %v", ErrInvalidDecision, err)
	}
	return out, nil
}
