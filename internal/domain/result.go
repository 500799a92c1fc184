package domain

// DispatchResult captures the outcome of delivering one event to one pixel.
// Err is set only for local failures (request build, network); a non-2xx
// response still populates Status and Body.
type DispatchResult struct {
	PixelID   string `json:"pixel_id"`
	PixelName string `json:"pixel_name,omitempty"`
	Status    int    `json:"status,omitempty"`
	Body      any    `json:"body,omitempty"`
	Err       string `json:"error,omitempty"`
}

// OK reports whether the delivery reached the destination with a 2xx status.
func (r DispatchResult) OK() bool {
	return r.Err == "" && r.Status >= 200 && r.Status < 300
}

// Aggregate is the ordered per-pixel breakdown of one dispatch. Order matches
// the configured pixel list after filtering.
type Aggregate struct {
	Results []DispatchResult `json:"results"`
}

// First returns the first pixel's result for callers that predate
// multi-destination support.
func (a *Aggregate) First() DispatchResult {
	if len(a.Results) == 0 {
		return DispatchResult{}
	}
	return a.Results[0]
}

// Succeeded counts results that reached their destination with a 2xx status.
func (a *Aggregate) Succeeded() int {
	n := 0
	for _, r := range a.Results {
		if r.OK() {
			n++
		}
	}
	return n
}
