package outcome

import "errors"

// Status is the top-level shape of an Outcome.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusRejected Status = "rejected"
	StatusFailed   Status = "failed"
)

// Outcome is exactly one of Success(ArtifactID), Rejected(Detail) or Failed(Kind, Detail).
type Outcome struct {
	Status     Status `json:"status"`
	ArtifactID string `json:"artifact_id,omitempty"`
	Kind       Kind   `json:"kind,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// Classify turns the result of a run into an Outcome. A nil err is a success.
func Classify(artifactID string, err error) Outcome {
	if err == nil {
		return Outcome{Status: StatusSuccess, ArtifactID: artifactID}
	}

	var e *Error
	if !errors.As(err, &e) {
		e = InternalIO(err.Error(), err)
	}

	status := StatusFailed
	if IsClientError(e.Kind) {
		status = StatusRejected
	}
	return Outcome{Status: status, Kind: e.Kind, Detail: e.Detail}
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool {
	return o.Status == StatusSuccess
}
