package model

import (
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// StepStatus is the state of a single plan step
type StepStatus string

const (
	StepStatusPending StepStatus = "pending"
	StepStatusSuccess StepStatus = "success"
	StepStatusFailed  StepStatus = "failed"
	StepStatusSkipped StepStatus = "skipped"
)

// PlanStep is one geographic tile of a coverage plan
type PlanStep struct {
	Index     int        `json:"index" firestore:"index"`
	Circle    string     `json:"circle" firestore:"circle"`
	Geography Geography  `json:"geography" firestore:"geography"`
	Query     string     `json:"query" firestore:"query"`
	Token     string     `json:"token" firestore:"token"`
	Status    StepStatus `json:"status" firestore:"status"`
}

// IsPending reports whether the step has not been resolved yet
func (s *PlanStep) IsPending() bool {
	return s.Status == "" || s.Status == StepStatusPending
}

// Descends reports whether the step's circle lies inside the given circle
// label, e.g. "1.2.3" descends from "1.2"
func (s *PlanStep) Descends(circle string) bool {
	return strings.HasPrefix(s.Circle, circle+".")
}

// Plan is an ordered sequence of steps that together cover an area
type Plan struct {
	Name      string      `json:"name" firestore:"name"`
	Steps     []*PlanStep `json:"steps" firestore:"steps"`
	CreatedAt time.Time   `json:"created_at" firestore:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" firestore:"updated_at"`
}

// Step returns the step at index
func (p *Plan) Step(index int) (*PlanStep, error) {
	if index < 0 || index >= len(p.Steps) {
		return nil, goerr.New("plan step out of range",
			goerr.V("plan", p.Name), goerr.V("index", index), goerr.V("steps", len(p.Steps)))
	}
	return p.Steps[index], nil
}

// PlanProgress records how far a whole-plan run has advanced
type PlanProgress struct {
	Name        string     `json:"name" firestore:"name"`
	Progress    int        `json:"progress" firestore:"progress"`
	APICalls    int        `json:"api_calls" firestore:"api_call"`
	UpdatedAt   time.Time  `json:"updated_at" firestore:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" firestore:"completed_at"`
}

// PlanCursor is the resolved position of a full-data request inside its plan
type PlanCursor struct {
	Request       *FetchRequest
	PlanName      string
	Index         int
	NextPageToken string
}
