package statusrpc

// StatusRequest is GetPipelineStatus's (and StreamPipelineStatus's)
// empty-or-filtered request. Epoch, when non-zero, narrows the
// response to a single epoch's last-known status.
type StatusRequest struct {
	Epoch uint64 `json:"epoch,omitempty"`
}

// StageStatus is one pipeline stage's last-observed state.
type StageStatus struct {
	Name      string `json:"name"`
	State     string `json:"state"` // pending, running, completed, failed, skipped
	Detail    string `json:"detail,omitempty"`
	UpdatedAt int64  `json:"updatedAt"`
}

// StatusResponse is the full pipeline status snapshot returned by
// GetPipelineStatus and streamed by StreamPipelineStatus.
type StatusResponse struct {
	Epoch          uint64        `json:"epoch"`
	CurrentStage   string        `json:"currentStage"`
	Stages         []StageStatus `json:"stages"`
	LastError      string        `json:"lastError,omitempty"`
	RecipientCount int           `json:"recipientCount,omitempty"`
	TotalRewards   string        `json:"totalRewards,omitempty"`
}
