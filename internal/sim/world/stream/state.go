package stream

// State is the streaming lifecycle of one tracked chunk. Untracked chunks are
// unloaded.
type State uint8

const (
	Loading State = iota + 1
	Clean
	Dirty
	Evicting
)

func (s State) String() string {
	switch s {
	case Loading:
		return "LOADING"
	case Clean:
		return "CLEAN"
	case Dirty:
		return "DIRTY"
	case Evicting:
		return "EVICTING"
	}
	return "UNLOADED"
}

type chunkRuntime struct {
	state State
	// busy is set while a worker task for the chunk is outstanding.
	busy     bool
	failures int
}

type taskKind uint8

const (
	taskGenerate taskKind = iota
	taskMesh
)

func (k taskKind) String() string {
	if k == taskGenerate {
		return "generate"
	}
	return "mesh"
}

// Stats describes one Step. Counters named Total* accumulate.
type Stats struct {
	Tick      uint64 `json:"tick"`
	Viewer    [3]int `json:"viewer"`
	Wanted    int    `json:"wanted"`
	Loading   int    `json:"loading"`
	Clean     int    `json:"clean"`
	Dirty     int    `json:"dirty"`
	Evicting  int    `json:"evicting"`
	InFlight  int    `json:"in_flight"`
	Generated int    `json:"generated"`
	Meshed    int    `json:"meshed"`
	Evicted   int    `json:"evicted"`
	Failures  int    `json:"failures"`
	// Skipped counts finished meshes that were not cached.
	Skipped   int    `json:"skipped"`

	TotalGenerated uint64 `json:"total_generated"`
	TotalMeshed    uint64 `json:"total_meshed"`
	TotalEvicted   uint64 `json:"total_evicted"`
	TotalFailures  uint64 `json:"total_failures"`
}
