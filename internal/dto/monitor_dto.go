package dto

import (
	"encoding/json"
	"fmt"
	"time"
)

// Monitor message type discriminators. The inbound set is closed: parsing
// rejects anything outside it, so adding a kind is a compile-visible change
// here and in the service's type switch.
const (
	MonitorTypePing           = "ping"
	MonitorTypeActivityUpdate = "activity_update"
	MonitorTypeCodeChange     = "code_change"
	MonitorTypeGetActivities  = "get_activities"
	MonitorTypeViolation      = "violation"
	MonitorTypeEndSession     = "end_session"

	MonitorTypePong       = "pong"
	MonitorTypeActivities = "activities"
	MonitorTypeError      = "error"
)

// MonitorMessage is the tagged union of client-to-server monitor messages.
type MonitorMessage interface {
	monitorMessage()
}

// PingMessage is a heartbeat; the server answers with exactly one pong.
type PingMessage struct{}

// ActivityUpdateMessage carries a partial update of the student's live state.
type ActivityUpdateMessage struct {
	Code            *string `json:"code"`
	Language        *string `json:"language"`
	ProblemID       *uint   `json:"problem_id"`
	TabSwitches     *int    `json:"tab_switches"`
	FullscreenExits *int    `json:"fullscreen_exits"`
}

// CodeChangeMessage carries only the current editor buffer.
type CodeChangeMessage struct {
	Code     *string `json:"code"`
	Language *string `json:"language"`
}

// GetActivitiesMessage requests a unicast snapshot of the lab.
type GetActivitiesMessage struct{}

// ViolationMessage reports an anti-integrity event for persistence.
type ViolationMessage struct {
	ViolationType string `json:"violation_type"`
	Severity      string `json:"severity"`
	Details       string `json:"details"`
	SubmissionID  *uint  `json:"submission_id"`
}

// EndSessionMessage closes the student's proctoring session explicitly.
type EndSessionMessage struct{}

func (PingMessage) monitorMessage()           {}
func (ActivityUpdateMessage) monitorMessage() {}
func (CodeChangeMessage) monitorMessage()     {}
func (GetActivitiesMessage) monitorMessage()  {}
func (ViolationMessage) monitorMessage()      {}
func (EndSessionMessage) monitorMessage()     {}

// ParseMonitorMessage decodes one raw client frame into its typed message.
// Unknown discriminators are an error, never silently ignored.
func ParseMonitorMessage(data []byte) (MonitorMessage, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("malformed monitor message: %w", err)
	}

	switch envelope.Type {
	case MonitorTypePing:
		return PingMessage{}, nil
	case MonitorTypeActivityUpdate:
		var message ActivityUpdateMessage
		if err := json.Unmarshal(data, &message); err != nil {
			return nil, fmt.Errorf("malformed activity_update: %w", err)
		}
		return message, nil
	case MonitorTypeCodeChange:
		var message CodeChangeMessage
		if err := json.Unmarshal(data, &message); err != nil {
			return nil, fmt.Errorf("malformed code_change: %w", err)
		}
		return message, nil
	case MonitorTypeGetActivities:
		return GetActivitiesMessage{}, nil
	case MonitorTypeViolation:
		var message ViolationMessage
		if err := json.Unmarshal(data, &message); err != nil {
			return nil, fmt.Errorf("malformed violation: %w", err)
		}
		return message, nil
	case MonitorTypeEndSession:
		return EndSessionMessage{}, nil
	default:
		return nil, fmt.Errorf("unknown monitor message type %q", envelope.Type)
	}
}

// StudentActivityView is the ephemeral per-student state shown on the live
// dashboard. It exists only for the lifetime of an active connection.
type StudentActivityView struct {
	StudentID       uint      `json:"student_id"`
	ProblemID       uint      `json:"problem_id,omitempty"`
	Language        string    `json:"language,omitempty"`
	Code            string    `json:"code,omitempty"`
	AttemptCount    int       `json:"attempt_count"`
	TabSwitches     int       `json:"tab_switches"`
	FullscreenExits int       `json:"fullscreen_exits"`
	LastSeen        time.Time `json:"last_seen"`
	Connected       bool      `json:"connected"`
}

// MonitorOutbound is the envelope for server-to-client monitor frames.
type MonitorOutbound struct {
	Type       string                `json:"type"`
	Activities []StudentActivityView `json:"activities,omitempty"`
	Message    string                `json:"message,omitempty"`
}

// NewPong builds the heartbeat reply frame.
func NewPong() MonitorOutbound {
	return MonitorOutbound{Type: MonitorTypePong}
}

// NewActivityBroadcast wraps a lab snapshot for fan-out to subscribers.
func NewActivityBroadcast(activities []StudentActivityView) MonitorOutbound {
	return MonitorOutbound{Type: MonitorTypeActivityUpdate, Activities: activities}
}

// NewActivitiesReply wraps a lab snapshot for a unicast get_activities reply.
func NewActivitiesReply(activities []StudentActivityView) MonitorOutbound {
	return MonitorOutbound{Type: MonitorTypeActivities, Activities: activities}
}

// NewMonitorError wraps a client-visible error frame.
func NewMonitorError(message string) MonitorOutbound {
	return MonitorOutbound{Type: MonitorTypeError, Message: message}
}
