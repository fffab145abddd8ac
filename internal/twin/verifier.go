package twin

import (
	"bytes"
	"time"

	"github.com/google/uuid"

	"main/internal/codec"
	"main/internal/obs"
	"main/internal/risk"
	"main/internal/schema"
)

// Mismatch captures one divergence between the model and the twin. Any
// mismatch fails the verification run: the acceptance criterion is identical
// decisions and identical reason codes for every (order, snapshot,
// prior-state) triple.
type Mismatch struct {
	Order     schema.Order
	Model     schema.RiskDecision
	Twin      schema.RiskDecision
	ModelWord []byte
	TwinWord  []byte
}

// Report summarizes a verification run.
type Report struct {
	RunID      string
	Evaluated  int
	Mismatches []Mismatch
}

// Passed reports whether the run saw no divergence.
func (r *Report) Passed() bool {
	return len(r.Mismatches) == 0
}

// Verifier drives the golden model and, when a link is present, the hardware
// twin with the same word stream, comparing decisions word-for-word.
type Verifier struct {
	engine  *risk.Engine
	link    *Link
	metrics *obs.Metrics
	report  Report
	word    []byte
}

// NewVerifier creates a verifier with a fresh run ID. link and metrics may be
// nil; without a link the verifier just exercises the model.
func NewVerifier(engine *risk.Engine, link *Link, metrics *obs.Metrics) *Verifier {
	return &Verifier{
		engine:  engine,
		link:    link,
		metrics: metrics,
		report:  Report{RunID: uuid.NewString()},
	}
}

// Check evaluates one order through the model and the twin. The model
// decision is returned; a non-nil mismatch means the twin disagreed.
func (v *Verifier) Check(order schema.Order, snap schema.NBBOSnapshot) (schema.RiskDecision, *Mismatch, error) {
	model, err := v.engine.Evaluate(order, snap)
	if err != nil {
		return model, nil, err
	}
	v.report.Evaluated++
	if v.link == nil {
		return model, nil, nil
	}

	start := time.Now()
	twinDecision, twinWord, err := v.link.Exchange(order, snap)
	if err != nil {
		return model, nil, err
	}
	v.metrics.ObserveTwinRoundTrip(time.Since(start))

	v.word = codec.EncodeDecision(v.word, model)
	if bytes.Equal(v.word, twinWord) {
		return model, nil, nil
	}
	mismatch := Mismatch{
		Order:     order,
		Model:     model,
		Twin:      twinDecision,
		ModelWord: append([]byte(nil), v.word...),
		TwinWord:  append([]byte(nil), twinWord...),
	}
	v.report.Mismatches = append(v.report.Mismatches, mismatch)
	return model, &v.report.Mismatches[len(v.report.Mismatches)-1], nil
}

// Report returns the run summary so far.
func (v *Verifier) Report() *Report {
	return &v.report
}
