package waybill

import "fmt"

// RenderError reports a failure in one stage of the generation pipeline.
// Stage names the step (resolve, fill, flatten, write, rasterize) so
// operators can tell template problems from backend problems.
type RenderError struct {
	Stage string
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("waybill generation failed at %s: %v", e.Stage, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}
