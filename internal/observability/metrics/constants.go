// Package metrics provides the Prometheus collectors for SkinScan components.
package metrics

import "time"

// Classification outcomes.
const (
	OutcomeSuccess        = "success"
	OutcomeInputError     = "input_error"
	OutcomeInferenceError = "inference_error"
	OutcomeTimeout        = "timeout"
)

// Pipeline stages timed per classification.
const (
	StageDecode     = "decode"
	StagePreprocess = "preprocess"
	StageScore      = "score"
	StageDecide     = "decide"
)

// Operation names shared by the Recorder implementations.
const (
	OpClassify    = "classify"
	OpModelLoad   = "model_load"
	OpHistorySave = "history_save"
	OpHistoryList = "history_list"
	OpHistoryGet  = "history_get"
	OpHistoryDel  = "history_delete"
	OpPublish     = "publish"
)

// Operation statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ShutdownTimeout bounds the metrics endpoint shutdown.
const ShutdownTimeout = 5 * time.Second
