package detect

import "sort"

// Status is the three-state outcome of classifying one turn.
type Status string

const (
	StatusSafe Status = "SAFE"
	StatusWait Status = "WAIT"
	StatusScam Status = "SCAM"
)

// Role labels the party that spoke a turn.
type Role string

const (
	RoleCaller   Role = "CALLER"
	RoleReceiver Role = "RECEIVER"
)

// Segment is one diarized speaker turn. Times are seconds from the start of the recording.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

func (s Segment) Duration() float64 { return s.End - s.Start }

// SortSegments orders segments by start time, keeping the relative order of ties.
func SortSegments(segs []Segment) {
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })
}

// Speakers lists distinct speaker tags in order of first appearance.
func Speakers(segs []Segment) []string {
	seen := make(map[string]struct{}, 2)
	var out []string
	for _, s := range segs {
		if _, ok := seen[s.Speaker]; ok {
			continue
		}
		seen[s.Speaker] = struct{}{}
		out = append(out, s.Speaker)
	}
	return out
}

// Utterance is a segment with its recognized text.
type Utterance struct {
	Segment
	Text string `json:"text"`
}

// Verdict is a gated classification result.
type Verdict struct {
	Status     Status  `json:"status"`
	Confidence float64 `json:"confidence"`
	// Context is the exact text that was classified.
	Context string `json:"context,omitempty"`
	// Degraded marks a verdict substituted after a classifier failure.
	Degraded bool `json:"degraded,omitempty"`
}
