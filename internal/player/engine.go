package player

// Events receives notifications from an Engine. Engines deliver events from
// their own goroutine and never from inside one of their method calls.
type Events interface {
	// Ready reports that the audio is decoded and Duration is known.
	Ready()
	// TimeUpdate reports playback progress while playing.
	TimeUpdate()
	// Finish reports that playback reached the end of the track.
	Finish()
	// Error reports that loading failed.
	Error(err error)
}

// Region is a highlighted, non-interactive span of the waveform.
type Region struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Engine is the audio playback and visualization backend. All times are in
// seconds on the whole track.
type Engine interface {
	Load(url string, events Events) error
	Play() error
	Pause()
	SeekTo(seconds float64)
	SetPlaybackRate(rate float64)
	CurrentTime() float64
	Duration() float64
	AddRegion(r Region)
	// Destroy releases the engine. No events are delivered afterwards.
	Destroy()
}

// EngineFactory creates a fresh engine for each loaded URL.
type EngineFactory func() Engine
