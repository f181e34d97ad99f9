package models

// WorkerMessage is the single message sent to a conversion worker.
type WorkerMessage struct {
	Data string `json:"data"`
	Argv []any  `json:"argv"`
}

// WorkerReply is the single message a conversion worker answers with.
// Status 0 means Stdout holds the converted lines; anything else means
// Stderr holds diagnostics.
type WorkerReply struct {
	Status int      `json:"status"`
	Stdout []string `json:"stdout"`
	Stderr []string `json:"stderr"`
}

func (r WorkerReply) Succeeded() bool {
	return r.Status == 0
}
