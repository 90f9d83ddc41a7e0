package hub

import (
	"encoding/json"
	"time"
)

// Session lifecycle states per platform.
const (
	FopInactive      = "INACTIVE"
	FopSessionActive = "SESSION_ACTIVE"
	FopSessionDone   = "SESSION_DONE"
)

// Markers the source uses to signal the end of a group.
const (
	uiEventGroupDone   = "GroupDone"
	breakTypeGroupDone = "GROUP_DONE"
)

// UpdateKind classifies inbound live frames.
type UpdateKind string

const (
	KindUpdate   UpdateKind = "update"
	KindTimer    UpdateKind = "timer"
	KindDecision UpdateKind = "decision"
	KindGeneric  UpdateKind = "generic"
)

// FopState is the merged live state of one platform. Known fields are
// typed; anything else the source sends lands in Extra so newer
// controllers keep working against older trackers. Merge precedence is
// later-wins per field.
type FopState struct {
	Platform       string                     `json:"fop"`
	State          string                     `json:"fopState,omitempty"`
	UIEvent        string                     `json:"uiEvent,omitempty"`
	BreakType      string                     `json:"breakType,omitempty"`
	GroupName      string                     `json:"groupName,omitempty"`
	CurrentAthlete string                     `json:"curAthlete,omitempty"`
	AttemptNumber  int                        `json:"attemptNumber,omitempty"`
	WeightKg       int                        `json:"weight,omitempty"`
	LiftType       string                     `json:"liftType,omitempty"`
	TimerMillis    int64                      `json:"athleteMillisRemaining,omitempty"`
	BreakMillis    int64                      `json:"breakMillisRemaining,omitempty"`
	TimerEventType string                     `json:"athleteTimerEventType,omitempty"`
	Decision       string                     `json:"decision,omitempty"`
	RefDecisions   []bool                     `json:"refereeDecisions,omitempty"`
	SessionDone    bool                       `json:"sessionDone"`
	DoneGroupName  string                     `json:"doneGroupName,omitempty"`
	LastUpdate     time.Time                  `json:"lastUpdate"`
	Extra          map[string]json.RawMessage `json:"-"`
}

// fopPayload is the wire shape of one update frame's payload. Unknown
// keys are collected separately by mergePayload.
type fopPayload struct {
	Fop            string `json:"fop"`
	FopState       string `json:"fopState"`
	UIEvent        string `json:"uiEvent"`
	BreakType      string `json:"breakType"`
	GroupName      string `json:"groupName"`
	CurAthlete     string `json:"curAthlete"`
	AttemptNumber  *int   `json:"attemptNumber"`
	Weight         *int   `json:"weight"`
	LiftType       string `json:"liftType"`
	AthleteMillis  *int64 `json:"athleteMillisRemaining"`
	BreakMillis    *int64 `json:"breakMillisRemaining"`
	TimerEventType string `json:"athleteTimerEventType"`
	Decision       string `json:"decision"`
	RefDecisions   []bool `json:"refereeDecisions"`
}

var knownPayloadKeys = map[string]struct{}{
	"fop": {}, "fopState": {}, "uiEvent": {}, "breakType": {},
	"groupName": {}, "curAthlete": {}, "attemptNumber": {}, "weight": {},
	"liftType": {}, "athleteMillisRemaining": {}, "breakMillisRemaining": {},
	"athleteTimerEventType": {}, "decision": {}, "refereeDecisions": {},
}

func newFopState(platform string) *FopState {
	return &FopState{
		Platform: platform,
		State:    FopInactive,
		Extra:    make(map[string]json.RawMessage),
	}
}

// mergePayload folds one update frame into the state, later-wins. It
// returns an error only for unparseable JSON; unknown fields are kept
// in the spill map, never rejected.
func (s *FopState) mergePayload(raw []byte, kind UpdateKind, now time.Time) error {
	var p fopPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}

	prev := s.State
	if p.FopState != "" {
		s.State = p.FopState
	}
	if p.UIEvent != "" {
		s.UIEvent = p.UIEvent
	}
	if p.BreakType != "" {
		s.BreakType = p.BreakType
	}
	if p.GroupName != "" {
		s.GroupName = p.GroupName
	}
	if p.CurAthlete != "" {
		s.CurrentAthlete = p.CurAthlete
	}
	if p.AttemptNumber != nil {
		s.AttemptNumber = *p.AttemptNumber
	}
	if p.Weight != nil {
		s.WeightKg = *p.Weight
	}
	if p.LiftType != "" {
		s.LiftType = p.LiftType
	}
	if p.AthleteMillis != nil {
		s.TimerMillis = *p.AthleteMillis
	}
	if p.BreakMillis != nil {
		s.BreakMillis = *p.BreakMillis
	}
	if p.TimerEventType != "" {
		s.TimerEventType = p.TimerEventType
	}
	if p.Decision != "" {
		s.Decision = p.Decision
	}
	if p.RefDecisions != nil {
		s.RefDecisions = p.RefDecisions
	}

	// Spill unknown fields for forward compatibility.
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err == nil {
		for k, v := range all {
			if _, known := knownPayloadKeys[k]; !known {
				s.Extra[k] = v
			}
		}
	}

	groupDone := p.UIEvent == uiEventGroupDone || p.BreakType == breakTypeGroupDone
	switch {
	case groupDone:
		s.SessionDone = true
		if p.GroupName != "" {
			s.DoneGroupName = p.GroupName
		} else {
			s.DoneGroupName = s.GroupName
		}
		s.State = FopSessionDone
	case kind == KindUpdate || kind == KindTimer || kind == KindDecision:
		s.SessionDone = false
		if prev == FopInactive && p.FopState != "" && p.FopState != FopInactive {
			s.State = FopSessionActive
		} else if s.State == FopSessionDone {
			s.State = FopSessionActive
		}
	}

	s.LastUpdate = now
	return nil
}

// clone returns a copy safe to hand to readers. The spill map is
// shared; entries are treated as immutable once stored.
func (s *FopState) clone() *FopState {
	cp := *s
	if s.RefDecisions != nil {
		cp.RefDecisions = append([]bool(nil), s.RefDecisions...)
	}
	return &cp
}

// NoActiveSession reports the condition displays must render as "no
// session": INACTIVE state with no current athlete.
func (s *FopState) NoActiveSession() bool {
	return s.State == FopInactive && s.CurrentAthlete == ""
}

// SessionStatus is the compact per-platform answer for status queries.
type SessionStatus struct {
	IsDone    bool   `json:"isDone"`
	GroupName string `json:"groupName,omitempty"`
	State     string `json:"state"`
}
