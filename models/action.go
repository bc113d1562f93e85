package models

// Request types for the device action API. Each maps to one logical action
// on the device facade.

type TapRequest struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type SwipeRequest struct {
	StartX   int `json:"start_x"`
	StartY   int `json:"start_y"`
	EndX     int `json:"end_x"`
	EndY     int `json:"end_y"`
	Duration int `json:"duration"` // milliseconds, 0 means default
}

type PressRequest struct {
	X        int `json:"x"`
	Y        int `json:"y"`
	Duration int `json:"duration"` // milliseconds, 0 means default
}

type TypeTextRequest struct {
	Text string `json:"text"`
}

type KeyEventRequest struct {
	Keycode int `json:"keycode"`
}

type ScrollRequest struct {
	Direction string `json:"direction"` // up, down, left, right
	Distance  int    `json:"distance"`  // pixels, 0 means default
}

// SwipePathRequest swipes through a sequence of points. The path must
// contain at least two points.
type SwipePathRequest struct {
	Path     [][2]int `json:"path"`
	Duration int      `json:"duration"` // total milliseconds, 0 means default
}

type ScreenshotRequest struct {
	SavePath string `json:"save_path,omitempty"`
}

// ActionResult is returned by every facade action. Successful mutating
// actions carry the post-action frame; failures never do.
type ActionResult struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	Frame            *Frame `json:"frame,omitempty"`
	FrameDescription string `json:"frame_description,omitempty"`
}

func ActionOK(message string, frame *Frame) *ActionResult {
	res := &ActionResult{Success: true, Message: message, Frame: frame}
	if frame != nil {
		res.FrameDescription = "post-action screen capture"
	}
	return res
}

func ActionFailed(message string) *ActionResult {
	return &ActionResult{Success: false, Message: message}
}
