package types

// This file defines the controller<->worker message protocol. The
// message channel with transferable-payload semantics is a buffered Go
// channel of these structs moving frame/chunk ownership by value (a
// slice header copy, not a deep copy) — the same move-semantics a
// platform without a native transferable-object primitive has to
// approximate some other way.

// ToWorker is the sum type of messages the controller sends to the worker.
// Exactly one field is non-nil, mirroring a oneof-style payload wrapper
// adapted to a plain Go struct since there is no wire/protobuf boundary
// here.
type ToWorker struct {
	Initialize    *InitializeCmd
	AddVideoFrame *AddVideoFrameCmd
	AddAudioData  *AddAudioDataCmd
	Finalize      *FinalizeCmd
	Cancel        *CancelCmd
}

// InitializeCmd carries the frozen config and an optional known frame count.
// Precondition: must be the first message.
type InitializeCmd struct {
	Config      EncoderConfig
	TotalFrames int // 0 means unknown
}

// AddVideoFrameCmd submits one frame. Precondition: state = ready or running.
type AddVideoFrameCmd struct {
	Frame *Frame
}

// AddAudioDataCmd submits one audio block. Precondition: state = ready or
// running, audio enabled.
type AddAudioDataCmd struct {
	Sample *AudioSample
}

// FinalizeCmd requests the terminal flush/mux sequence. Precondition:
// state = running.
type FinalizeCmd struct{}

// CancelCmd requests teardown. Valid in any non-terminal state.
type CancelCmd struct{}

// FromWorker is the sum type of messages the worker sends to the controller.
type FromWorker struct {
	Initialized *InitializedMsg
	Progress    *ProgressMsg
	QueueSize   *QueueSizeMsg
	DataChunk   *DataChunkMsg
	Finalized   *FinalizedMsg
	Cancelled   *CancelledMsg
	Error       *ErrorMsg
}

// InitializedMsg reports the pipeline is ready, with the actual negotiated
// codec strings.
type InitializedMsg struct {
	ActualVideoCodec string
	ActualAudioCodec string
}

// ProgressMsg is a cumulative progress record.
type ProgressMsg struct {
	ProcessedFrames      int
	TotalFrames          int // 0 means unknown
	FPS                  float64
	Stage                string
	EstimatedRemainingMs int64 // -1 when undefined
	DroppedFrames        int
}

// QueueSizeMsg is a backpressure signal.
type QueueSizeMsg struct {
	VideoQueueDepth int
	AudioQueueDepth int

	// CPUPercent/MemoryMB are a supplement (process stats),
	// optional and additive to the mandatory depth fields.
	CPUPercent float64
	MemoryMB   float64
}

// DataChunkMsg is emitted only in realtime mode.
type DataChunkMsg struct {
	Bytes     []byte
	IsHeader  bool
	Container Container
}

// FinalizedMsg is terminal: Bytes is non-empty in batch mode, nil in
// realtime mode (the design, invariant 5).
type FinalizedMsg struct {
	Bytes []byte
}

// CancelledMsg is terminal, emitted once cancellation completes.
type CancelledMsg struct{}

// ErrorMsg is terminal and carries one taxonomy Kind.
type ErrorMsg struct {
	Kind    Kind
	Message string
	Stack   string
}
